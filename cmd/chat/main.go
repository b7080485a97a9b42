// Command chat is the interactive Fireside client: sign in, claim a
// username, and watch the live message feed. All state lives in the managed
// backend (Redis documents, NATS fan-out); the client is a view over
// subscription snapshots.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fireside/chat-app/internal/auth"
	"github.com/fireside/chat-app/internal/config"
	"github.com/fireside/chat-app/internal/docstore"
	"github.com/fireside/chat-app/internal/feed"
	"github.com/fireside/chat-app/internal/globalgroup"
	"github.com/fireside/chat-app/internal/messaging"
	"github.com/fireside/chat-app/internal/metrics"
	"github.com/fireside/chat-app/internal/profile"
)

func main() {
	cfg := config.Load()
	if cfg.AuthKey == "" {
		log.Fatalf("AUTH_KEY is required")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "fireside-chat"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	store := docstore.NewRedisStore(rdb, natsClient)
	authSvc := auth.NewDocService(store, []byte(cfg.AuthKey))
	profiles := profile.NewService(store, authSvc)
	global := globalgroup.NewService(store)
	view := feed.NewView(store, authSvc, cfg.Location())

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("[metrics] server: %v", err)
			}
		}()
	}

	cancelAuthLog := authSvc.OnAuthChange(func(account auth.Account, signedIn bool) {
		if signedIn {
			log.Printf("[session] signed in as %s", account.Email)
		} else {
			log.Printf("[session] signed out")
		}
	})
	defer cancelAuthLog()

	// Graceful teardown is the only thing that marks us offline.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		shutdown(view, authSvc, natsClient, rdb)
		os.Exit(0)
	}()

	view.OnUpdate(func() {
		fmt.Printf("\r[feed] %d rows, %d online (/feed to render)\n> ", len(view.Rows()), view.Online())
	})

	repl(view, authSvc, profiles, global)
	shutdown(view, authSvc, natsClient, rdb)
}

func shutdown(view *feed.View, authSvc *auth.DocService, natsClient *messaging.NATSClient, rdb *redis.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	view.Close(ctx)
	authSvc.SignOut(ctx)
	natsClient.Close()
	if err := rdb.Close(); err != nil {
		log.Printf("redis close: %v", err)
	}
}

func repl(view *feed.View, authSvc *auth.DocService, profiles *profile.Service, global *globalgroup.Service) {
	fmt.Println("Fireside chat. /help for commands.")
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			return
		}
		if line != "" {
			handle(line, view, authSvc, profiles, global)
		}
		fmt.Print("> ")
	}
}

func handle(line string, view *feed.View, authSvc *auth.DocService, profiles *profile.Service, global *globalgroup.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd, rest := line, ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		cmd, rest = line[:i], strings.TrimSpace(line[i+1:])
	}
	if !strings.HasPrefix(cmd, "/") {
		// Plain input is a message send.
		view.SetDraft(line)
		if err := view.Send(ctx); err != nil {
			// Alert-level: the message is lost, there is no retry queue.
			log.Printf("[alert] message not sent: %v", err)
		}
		return
	}

	switch cmd {
	case "/help":
		printHelp()

	case "/signup", "/login":
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			fmt.Printf("usage: %s <email> <password>\n", cmd)
			return
		}
		var err error
		if cmd == "/signup" {
			_, err = authSvc.SignUp(ctx, parts[0], parts[1])
		} else {
			_, err = authSvc.SignIn(ctx, parts[0], parts[1])
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		enterFeed(ctx, view, authSvc, profiles)

	case "/logout":
		view.Close(ctx)
		authSvc.SignOut(ctx)

	case "/username":
		account, ok := authSvc.CurrentAccount()
		if !ok {
			fmt.Println("sign in first")
			return
		}
		if err := profiles.ClaimUsername(ctx, account.ID, account.Email, rest); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("username set to %q\n", rest)

	case "/profile":
		account, ok := authSvc.CurrentAccount()
		if !ok {
			fmt.Println("sign in first")
			return
		}
		parts := strings.SplitN(rest, " ", 2)
		if parts[0] == "" {
			fmt.Println("usage: /profile <username> [bio]")
			return
		}
		bio := ""
		if len(parts) == 2 {
			bio = parts[1]
		}
		if err := profiles.Update(ctx, account.ID, account.Email, parts[0], bio); err != nil {
			log.Printf("[alert] profile update failed: %v", err)
			return
		}
		fmt.Println("profile updated")

	case "/search":
		results, err := profiles.Search(ctx, rest)
		if err != nil {
			log.Printf("[alert] search failed: %v", err)
			return
		}
		for _, p := range results {
			fmt.Printf("  %s - %s\n", p.Username, p.Bio)
		}

	case "/feed":
		renderRows(view.Rows())
		fmt.Printf("%d online\n", view.Online())

	case "/reply":
		if rest == "" {
			fmt.Println("usage: /reply <message-id>")
			return
		}
		view.StageReply(rest)

	case "/noreply":
		view.ClearReply()

	case "/global":
		posts, err := global.FetchAll(ctx)
		if err != nil {
			log.Printf("[alert] global group fetch failed: %v", err)
			return
		}
		for _, p := range posts {
			fmt.Printf("  %s: %s\n", p.Username, p.Message)
		}

	case "/gsend":
		account, ok := authSvc.CurrentAccount()
		if !ok {
			fmt.Println("sign in first")
			return
		}
		// An account without a display name posts as "Anonymous".
		if err := global.Send(ctx, account.DisplayName, rest); err != nil {
			log.Printf("[alert] global post failed: %v", err)
		}

	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
}

// enterFeed opens the live view after sign-in, prompting for a username
// first if the profile has none yet.
func enterFeed(ctx context.Context, view *feed.View, authSvc *auth.DocService, profiles *profile.Service) {
	account, ok := authSvc.CurrentAccount()
	if !ok {
		return
	}
	p, err := profiles.Load(ctx, account.ID)
	if err != nil || p.Username == "" {
		fmt.Println("no username yet, set one with /username <name>")
	}
	if err := view.Open(ctx); err != nil {
		log.Printf("[alert] could not open feed: %v", err)
		return
	}
	renderRows(view.Rows())
}

func renderRows(rows []feed.Row) {
	for _, r := range rows {
		switch r.Kind {
		case feed.RowDateSeparator:
			fmt.Printf("  --- %s ---\n", r.DateLabel)
		case feed.RowMessage:
			marker := " "
			if r.IsSender {
				marker = "*"
			}
			if r.Reply != nil {
				fmt.Printf("  %s ┌ %s: %s\n", marker, r.Reply.AuthorName, r.Reply.Text)
			}
			fmt.Printf("  %s %s: %s  (%s)\n", marker, r.Msg.AuthorName, r.Msg.Text, r.Msg.ID)
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  /signup <email> <password>   create an account and sign in
  /login <email> <password>    sign in
  /logout                      sign out (marks you offline)
  /username <name>             claim a unique username
  /profile <username> [bio]    update your profile
  /search <prefix>             search users by username prefix
  /feed                        render the live feed
  /reply <message-id>          stage a reply target for the next message
  /noreply                     clear the staged reply
  /global                      show the global group list
  /gsend <text>                post to the global group
  /quit                        exit (graceful teardown)
  <anything else>              send it as a message`)
}
