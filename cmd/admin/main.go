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
)

var (
	configPath = flag.String("config", "", "configuration file (optional)")
	userID     = flag.Int64("user", 0, "admin user id")
	userName   = flag.String("name", "", "admin display name")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		cfg = config.MustReadConfig(*configPath)
	}
	if *userID == 0 || *userName == "" {
		fmt.Fprintln(os.Stderr, "usage: admin -user <id> -name <name>")
		os.Exit(2)
	}

	actor := domain.Actor{
		ID:   *userID,
		Name: *userName,
		Role: domain.RoleAdmin,
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
	printRoster(ctx, a)
	fmt.Println("명령: /rooms, /open <id>, /close [id], /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/rooms":
			printRoster(ctx, a)
		case strings.HasPrefix(line, "/open "):
			openRoom(ctx, a, strings.TrimPrefix(line, "/open "))
		case strings.HasPrefix(line, "/close"):
			closeRoom(ctx, a, strings.TrimSpace(strings.TrimPrefix(line, "/close")))
		default:
			if err := sess.Send(line); err != nil {
				fmt.Printf("! %v\n", err)
			}
		}
	}
}

func openRoom(ctx context.Context, a *app.App, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Println("사용법: /open <room id>")
		return
	}
	if err := a.Session().EnterRoom(ctx, id); err != nil {
		fmt.Printf("! %v\n", err)
		return
	}
	for _, m := range a.Session().Messages() {
		printMessage(m)
	}
	a.Session().ClearNew()
}

func closeRoom(ctx context.Context, a *app.App, arg string) {
	if arg == "" {
		if err := a.Session().Close(ctx); err != nil {
			fmt.Printf("! %v\n", err)
		}
		return
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Println("사용법: /close [room id]")
		return
	}
	if err := a.Session().CloseRoom(ctx, id); err != nil {
		fmt.Printf("! %v\n", err)
	}
}

func printRoster(ctx context.Context, a *app.App) {
	rooms, err := a.Session().Roster(ctx)
	if err != nil {
		fmt.Printf("! %v\n", err)
		return
	}
	if len(rooms) == 0 {
		fmt.Println("상담방이 없습니다.")
		return
	}
	for _, r := range rooms {
		marker := " "
		if r.HasNewMessage {
			marker = "*"
		}
		fmt.Printf("%s #%d [%s] %s (%d명)\n", marker, r.ID, r.Status, r.Title, r.UserCount)
	}
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
