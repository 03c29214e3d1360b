package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/O-HAM-MA/apartner-chat/config"
	"github.com/O-HAM-MA/apartner-chat/internal/app"
	"github.com/O-HAM-MA/apartner-chat/internal/domain"
	"github.com/O-HAM-MA/apartner-chat/pkg/logger"
	"github.com/O-HAM-MA/apartner-chat/service"
)

var (
	configPath  = flag.String("config", "", "configuration file (optional)")
	userID      = flag.Int64("user", 0, "resident user id")
	userName    = flag.String("name", "", "resident display name")
	apartmentID = flag.Int64("apartment", 0, "apartment id")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		cfg = config.MustReadConfig(*configPath)
	}
	if *userID == 0 || *userName == "" {
		fmt.Fprintln(os.Stderr, "usage: resident -user <id> -name <name> -apartment <id>")
		os.Exit(2)
	}

	actor := domain.Actor{
		ID:          *userID,
		Name:        *userName,
		Role:        domain.RoleResident,
		ApartmentID: *apartmentID,
	}

	a := app.New(cfg, actor)
	defer a.Shutdown()
	sess := a.Session()

	sess.OnUpdate(func() {
		for _, m := range sess.Messages() {
			if !m.IsNew {
				continue
			}
			printMessage(m)
		}
		sess.ClearNew()
	})

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		a.Shutdown()
		os.Exit(0)
	}()

	ctx := logger.NewContext(context.Background(), a.Logger())
	status := a.Tracker().Check(ctx)
	if status.ActiveRoom != nil {
		fmt.Printf("진행 중인 상담이 있습니다: %s\n", status.ActiveRoom.Title)
		if err := sess.EnterRoom(ctx, status.ActiveRoom.ID); err != nil {
			fmt.Printf("! %v\n", err)
		} else {
			printHistory(sess)
		}
	} else {
		printCategories()
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/close":
			if err := sess.Close(ctx); err != nil {
				fmt.Printf("! %v\n", err)
			}
		case line == "/leave":
			sess.Reset()
			printCategories()
		case line == "/unread":
			st := a.Tracker().Check(ctx)
			fmt.Printf("읽지 않은 상담방: %d\n", st.UnreadCount)
		case sess.State() == service.StateIdle:
			pickCategory(ctx, sess, line)
		default:
			if err := sess.Send(line); err != nil {
				fmt.Printf("! %v\n", err)
			}
		}
	}
}

func pickCategory(ctx context.Context, sess *service.Session, line string) {
	cats := domain.Categories()
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(cats) {
		fmt.Println("번호를 선택하세요.")
		printCategories()
		return
	}
	if err := sess.StartByCategory(ctx, cats[n-1]); err != nil {
		fmt.Printf("! %v\n", err)
		return
	}
	printHistory(sess)
	fmt.Println("메시지를 입력하세요. (/close 종료, /leave 나가기)")
}

func printCategories() {
	fmt.Println("상담 분류를 선택하세요:")
	for i, c := range domain.Categories() {
		fmt.Printf("  %d. %s\n", i+1, c.DisplayName())
	}
}

func printHistory(sess *service.Session) {
	for _, m := range sess.Messages() {
		printMessage(m)
	}
	sess.ClearNew()
}

func printMessage(m domain.ChatMessage) {
	switch {
	case m.IsSystem:
		fmt.Printf("-- %s --\n", m.Message)
	case m.IsMine:
		fmt.Printf("[나] %s\n", m.Message)
	default:
		fmt.Printf("[%s] %s\n", m.UserName, m.Message)
	}
}
