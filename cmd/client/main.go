package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixel-chat/auth"
	"pixel-chat/domain/chat"
	"pixel-chat/infrastructure/blobhttp"
	chatgrpc "pixel-chat/infrastructure/grpc"
	"pixel-chat/infrastructure/ws"
	"pixel-chat/internal"
	"pixel-chat/moderation"
	"pixel-chat/pixelate"
	"pixel-chat/runtime"
	"pixel-chat/services"
	"pixel-chat/upload"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	config, err := internal.LoadClientConfig()
	if err != nil {
		return exitConfig, err
	}
	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(config.ServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	store := chatgrpc.NewClient(conn, log)
	identity, err := auth.Ensure(ctx, store)
	if err != nil {
		return exitRuntime, fmt.Errorf("anonymous sign-in failed: %w", err)
	}

	censor, err := moderation.NewCensor(config.Words(), replacement, log)
	if err != nil {
		return exitConfig, err
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	pipeline := upload.NewPipeline(
		pixelate.NewEncoder(httpClient, log),
		blobhttp.NewClient(config.BlobURL, httpClient),
		config.UploadChunkSize,
		log,
	)
	session := chat.Session{ParticipantID: identity.ParticipantID, Nickname: config.Nickname}
	synchronizer := services.NewSynchronizer(session, store, pipeline, censor, log)
	fanout := runtime.NewEventFanout(log, 2*time.Second).Add(newConsole(os.Stdout, identity.ParticipantID))
	synchronizer.AddSink(fanout)

	sup := runtime.NewSupervisor(log)
	sup.Add(fanout, &feed{synchronizer: synchronizer, log: log})
	if config.FeedAddress != "" {
		hub := ws.NewHub(log)
		fanout.Add(hub)
		sup.Add(hub, runtime.NewHTTPServer(config.FeedAddress, hub, log))
	}
	supervised := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervised)
	}()

	fmt.Println(color.FgGreen.Render(fmt.Sprintf(">>> Connected to %s as %s (/quit to leave)", config.ServerAddress, session.DisplayName())))
	readCommands(ctx, stop, synchronizer, config.DefaultPixelSize, log)

	stop()
	<-supervised
	return exitOK, nil
}

// readCommands runs until stdin closes, /quit or ctx is done.
// Photos are sent in the background so that typing is never blocked.
func readCommands(ctx context.Context, stop context.CancelFunc, synchronizer services.ISynchronizer, defaultPixelSize int, log *slog.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return
		case next, ok := <-lines:
			if !ok {
				return
			}
			line = next
		}

		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Println(color.FgRed.Render(err.Error()))
			continue
		}
		switch cmd.kind {
		case quit:
			stop()
			return
		case sendText:
			if _, err = synchronizer.SendText(ctx, cmd.argument); err != nil {
				fmt.Println(color.FgRed.Render("not sent: " + err.Error()))
			}
		case acceptPhoto:
			if err = synchronizer.AcceptPhoto(ctx, cmd.argument); err != nil {
				fmt.Println(color.FgRed.Render("not accepted: " + err.Error()))
			}
		case sendPhotoFile, sendPhotoURL:
			source, err := photoSource(cmd)
			if err != nil {
				fmt.Println(color.FgRed.Render(err.Error()))
				continue
			}
			pixelSize := cmd.pixelSize
			if pixelSize == 0 {
				pixelSize = defaultPixelSize
			}
			go func() {
				photoCmd := chat.SendPhotoCommand{Source: source, PixelSize: pixelSize, Caption: cmd.caption}
				if _, err := synchronizer.SendPhoto(context.WithoutCancel(ctx), photoCmd); err != nil {
					log.Debug("Photo send failed", "error", err)
					fmt.Println(color.FgRed.Render("photo not sent: " + err.Error()))
				}
			}()
		}
	}
}

func photoSource(cmd command) (chat.PhotoSource, error) {
	if cmd.kind == sendPhotoURL {
		return chat.PhotoSource{Locator: cmd.argument}, nil
	}
	data, err := os.ReadFile(cmd.argument)
	if err != nil {
		return chat.PhotoSource{}, err
	}
	return chat.PhotoSource{Data: data, ContentType: mimetype.Detect(data).String()}, nil
}
