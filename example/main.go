package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/eventually"
	"github.com/jpalmerr/eventually/internal/httpprobe"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	// start mock service (see mock_server.go) on a free port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: newMockService().Handler()}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()
	base := "http://" + ln.Addr().String()

	e, err := eventually.New(
		eventually.WithLogger(logger),
		eventually.WithPollDelay(100*time.Millisecond),
	)
	if err != nil {
		return err
	}

	client := httpprobe.NewClient()
	defer client.Close()

	// 1. wait for 2 services x 2 envs to start, two at a time
	type service struct{ svc, env string }
	services := []service{{"users", "prod"}, {"users", "staging"}, {"orders", "prod"}, {"orders", "staging"}}

	statuses, err := eventually.Parallel(ctx, e, len(services), 2, 10*time.Second,
		func(ctx context.Context, i int) (httpprobe.Status, error) {
			s := services[i]
			req := httpprobe.Request{
				URL:     fmt.Sprintf("%s/health?svc=%s&env=%s", base, s.svc, s.env),
				Timeout: time.Second,
			}
			return eventually.AssertThatSoon(ctx, e, s.svc+"/"+s.env+" is healthy",
				client.Probe(req, nil), eventually.EqualTo(httpprobe.StatusUp))
		})
	if err != nil {
		return err
	}
	fmt.Printf("services ready: %v\n", statuses)

	// 2. meanwhile, watch the item list grow in the background
	watch := eventually.Meanwhile(ctx, e,
		func(ctx context.Context) (int, error) {
			return eventually.AssertThat(ctx, e, 5*time.Second, "item list is full",
				eventually.Try(func(ctx context.Context) (int, error) {
					_, items, err := fetchItems(ctx, client, base)
					return len(items), err
				}),
				eventually.GreaterThan(4))
		},
		func(n int) { fmt.Printf("item list full: %d items\n", n) },
		func(err error) { fmt.Printf("item list never filled:\n%v\n", err) },
	)

	// 3. read the third item; the list is rebuilt under us, so retry on stale
	item, err := eventually.KeepTrying(ctx, e, 5*time.Second,
		eventually.Try(func(ctx context.Context) (string, error) {
			return eventually.RetryOnStale(ctx, e, func(ctx context.Context) (string, error) {
				return fetchItem(ctx, client, base, 2)
			})
		}),
	)
	if err != nil {
		return err
	}
	fmt.Printf("third item: %s\n", item)

	_, err = watch.Wait(ctx)
	return err
}

// fetchItems reads the current list and its version.
func fetchItems(ctx context.Context, client *httpprobe.Client, base string) (int, []string, error) {
	resp := client.Fetch(ctx, httpprobe.Request{URL: base + "/items", Timeout: time.Second})
	if resp.Error != nil {
		return 0, nil, resp.Error
	}
	var body struct {
		Version int      `json:"version"`
		Items   []string `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return 0, nil, err
	}
	return body.Version, body.Items, nil
}

// fetchItem reads item i of the list version it just observed. A list rebuilt
// between the two requests is a stale reference.
func fetchItem(ctx context.Context, client *httpprobe.Client, base string, i int) (string, error) {
	version, items, err := fetchItems(ctx, client, base)
	if err != nil {
		return "", err
	}
	if i >= len(items) {
		// not there yet; the outer poll tries again
		return "", errors.New("item not listed yet")
	}

	resp := client.Fetch(ctx, httpprobe.Request{
		URL:     fmt.Sprintf("%s/items/%d?version=%d", base, i, version),
		Timeout: time.Second,
	})
	switch {
	case resp.Error != nil:
		return "", resp.Error
	case resp.StatusCode == http.StatusGone:
		return "", eventually.Stale(fmt.Errorf("item %d of list version %d", i, version))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("item %d: HTTP %d", i, resp.StatusCode)
	}

	var body struct {
		Item string `json:"item"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", err
	}
	return body.Item, nil
}
