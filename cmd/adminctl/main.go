package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"estatedesk.org/internal/auth"
	"estatedesk.org/internal/client"
	"estatedesk.org/internal/kv"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}

	apiURL := os.Getenv("ESTATEDESK_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	c := client.New(apiURL)
	mgr := auth.NewSessionManager(c, sessionStore())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "login":
		err = runLogin(ctx, mgr, os.Args[2:])
	case "logout":
		err = runLogout(ctx, c, mgr)
	case "whoami":
		err = runWhoami(ctx, mgr)
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: adminctl [login|logout|whoami]")
	fmt.Fprintln(os.Stderr, "  login -role manager|agent -id <identifier>")
	os.Exit(2)
}

// sessionStore persists the session under the user's home directory.
func sessionStore() kv.Store {
	home, err := os.UserHomeDir()
	if err != nil {
		return kv.NewMemory()
	}
	return kv.NewFile(filepath.Join(home, ".estatedesk", "session.json"))
}

func runLogin(ctx context.Context, mgr *auth.SessionManager, args []string) error {
	var roleArg, identifier string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-role":
			i++
			if i < len(args) {
				roleArg = args[i]
			}
		case "-id":
			i++
			if i < len(args) {
				identifier = args[i]
			}
		}
	}
	role, err := auth.ParseRole(roleArg)
	if err != nil {
		return errors.New("role must be manager or agent")
	}
	if strings.TrimSpace(identifier) == "" {
		return errors.New("-id is required")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	secret, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	secret = strings.TrimRight(secret, "\r\n")

	sess, err := mgr.SignIn(ctx, role, identifier, secret)
	if err != nil {
		return errors.New(auth.UserMessage(role, err))
	}
	fmt.Printf("signed in as %s (%s), session valid until %s\n",
		sess.Identity.DisplayName, sess.Identity.Role, sess.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func runLogout(ctx context.Context, c *client.Client, mgr *auth.SessionManager) error {
	if err := mgr.Restore(ctx); err != nil {
		return err
	}
	if token, ok := mgr.Token(); ok {
		if err := c.Logout(ctx, token); err != nil {
			return err
		}
	}
	if err := mgr.SignOut(ctx); err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

func runWhoami(ctx context.Context, mgr *auth.SessionManager) error {
	if err := mgr.Restore(ctx); err != nil {
		return err
	}
	identity, ok := mgr.Current()
	if !ok {
		return errors.New("not signed in")
	}
	fmt.Printf("%s (%s)", identity.DisplayName, identity.Role)
	if identity.Email != "" {
		fmt.Printf(" <%s>", identity.Email)
	}
	fmt.Println()
	return nil
}
