// calretd is the optional HTTP daemon wrapping internal/httpapi around a
// single collection, the way shibudb-server's cmd/server wraps a TCP
// listener around a single Store: open once, serve many requests,
// shut down on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calret/internal/authcred"
	"calret/internal/httpapi"
	"calret/internal/store"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "listen address")
		collection    = flag.String("collection", "", "path to a built collection (required)")
		cacheCapacity = flag.Int("cache-capacity", 4096, "LRU posting-list read-cache capacity (0 = unbounded)")
		credsFile     = flag.String("creds-file", "", "path to the shared-secret credential file (empty disables auth)")
		bootstrap     = flag.String("bootstrap-user", "", "if set, create creds-file with this username (prompts are not supported; pass -bootstrap-password too)")
		bootstrapPass = flag.String("bootstrap-password", "", "password for -bootstrap-user")
	)
	flag.Parse()

	if *collection == "" {
		fmt.Fprintln(os.Stderr, "calretd: -collection is required")
		os.Exit(1)
	}

	s, err := store.Open(*collection, *cacheCapacity)
	if err != nil {
		log.Fatalf("calretd: opening collection %s: %v", *collection, err)
	}
	defer s.Close()

	var gate *authcred.Gate
	switch {
	case *credsFile == "":
		log.Printf("calretd: no -creds-file given, /train and /score are unauthenticated")
	case *bootstrap != "":
		if *bootstrapPass == "" {
			log.Fatalf("calretd: -bootstrap-password is required with -bootstrap-user")
		}
		gate, err = authcred.Bootstrap(*credsFile, *bootstrap, *bootstrapPass)
		if err != nil {
			log.Fatalf("calretd: bootstrapping credentials: %v", err)
		}
		log.Printf("calretd: bootstrapped credentials for user %q at %s", *bootstrap, *credsFile)
	default:
		gate, err = authcred.Open(*credsFile)
		if err != nil {
			log.Fatalf("calretd: opening credentials: %v", err)
		}
		if !gate.Configured() {
			log.Printf("calretd: %s has no credentials yet; run with -bootstrap-user/-bootstrap-password once", *credsFile)
		}
	}

	srv := httpapi.New(s, gate)
	httpSrv := &http.Server{
		Addr:    *addr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("calretd: listening on %s (collection %s, %d docs)", *addr, *collection, s.NumDocs())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("calretd: %v", err)
		}
	case <-ctx.Done():
		log.Printf("calretd: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("calretd: shutdown error: %v", err)
		}
	}
}
