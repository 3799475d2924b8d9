package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/chzyer/readline"

	"github.com/preisanalytics/redis-semaphore/pkg/client"
	clienttcp "github.com/preisanalytics/redis-semaphore/pkg/client/tcp"
	"github.com/preisanalytics/redis-semaphore/pkg/semaphore"
	"github.com/preisanalytics/redis-semaphore/pkg/store/remote"
)

func main() {
	address := flag.String("address", "localhost:3223", "Address of the store daemon")
	username := flag.String("username", "", "Username for authentication")
	password := flag.String("password", "", "Password for authentication")
	resources := flag.Int("resources", 1, "Pool capacity for semaphore commands")
	idleTimeout := flag.Duration("idle_timeout", time.Minute, "Idle timeout for connection")
	maxMessageSizeStr := flag.String("max_message_size", "4KB", "Max message size for connection")
	flag.Parse()

	// With positional arguments semctl runs a one-shot semaphore command
	// instead of the REPL: `semctl acquire <name>` / `semctl release <name> <token>`.
	if args := flag.Args(); len(args) > 0 {
		if err := runSemaphoreCommand(args, *address, *username, *password, *resources); err != nil {
			log.Fatal(err)
		}
		return
	}

	c, err := client.New(&client.Config{
		Address:        *address,
		Username:       *username,
		Password:       *password,
		IdleTimeout:    *idleTimeout,
		MaxMessageSize: *maxMessageSizeStr,
	})
	if err != nil {
		log.Fatal(err)
	}

	rl, err := readline.New("semctl> ")
	if err != nil {
		log.Fatal(err)
	}

	err = c.CLI(rl)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func runSemaphoreCommand(args []string, address, username, password string, resources int) error {
	conn, err := clienttcp.NewClient(address)
	if err != nil {
		return err
	}

	st := remote.New(conn)
	defer st.Close()

	if password != "" {
		if err := st.Auth(username, password); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "acquire":
		if len(args) != 2 {
			return errors.New("usage: semctl acquire <name>")
		}

		sem, err := semaphore.New(st, args[1], semaphore.WithResources(resources))
		if err != nil {
			return err
		}

		tok, ok, err := sem.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("semaphore %q has no free tokens", args[1])
		}

		fmt.Println(tok)
		return nil
	case "release":
		if len(args) != 3 {
			return errors.New("usage: semctl release <name> <token>")
		}

		sem, err := semaphore.New(st, args[1], semaphore.WithResources(resources))
		if err != nil {
			return err
		}

		return sem.ReleaseToken(ctx, semaphore.ParseToken(args[2]))
	case "available":
		if len(args) != 2 {
			return errors.New("usage: semctl available <name>")
		}

		sem, err := semaphore.New(st, args[1], semaphore.WithResources(resources))
		if err != nil {
			return err
		}

		n, err := sem.Available(ctx)
		if err != nil {
			return err
		}

		fmt.Println(n)
		return nil
	}

	return fmt.Errorf("unknown command %q", args[0])
}
