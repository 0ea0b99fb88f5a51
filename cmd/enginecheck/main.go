package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	corechess "github.com/park285/chess-ascension/internal/chess"
	"github.com/park285/chess-ascension/internal/chess/rules"
	"github.com/park285/chess-ascension/internal/chess/uci"
	"github.com/park285/chess-ascension/internal/obslog"
)

func main() {
	path := flag.String("engine", os.Getenv("STOCKFISH_PATH"), "path to a UCI engine binary")
	strength := flag.String("strength", "intermediate", "beginner, intermediate or advanced")
	fen := flag.String("fen", "", "position to search (default: start position)")
	flag.Parse()

	if *path == "" {
		log.Fatal("STOCKFISH_PATH or -engine is required")
	}
	level, err := corechess.ParseStrength(*strength)
	if err != nil {
		log.Fatalf("strength: %v", err)
	}
	position := *fen
	if position == "" {
		position = rules.StartPosition()
	}

	logger, err := obslog.InitFromEnv()
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	opp := corechess.NewOpponent(corechess.BinaryLauncher(*path), uci.Options{})
	opp.SetLogger(logger.Named("enginecheck"))
	defer func() { _ = opp.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer cancel()

	start := time.Now()
	if err := opp.Start(ctx); err != nil {
		log.Fatalf("handshake error: %v", err)
	}
	fmt.Printf("handshake ok in %s\n", time.Since(start).Round(time.Millisecond))

	reply, err := opp.RequestMove(ctx, position, level)
	if err != nil {
		log.Fatalf("search error: %v", err)
	}
	fmt.Printf("strength=%s depth=%d bestmove=%s eval=%dcp search=%s\n",
		level, reply.Depth, reply.Move, reply.EvalCP, reply.Duration.Round(time.Millisecond))
}
