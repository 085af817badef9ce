// cmd/eventgen is a mock user-service producer: it is not part of the
// reliability core, only a convenience for exercising the event consumer
// end-to-end without a real user service (§6 supplement, grounded on
// original_source/backend/app/producers/user_producer_mock.py's
// create/update/delete loops over an in-memory user set).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/order-lifecycle/internal/domain"
	"github.com/arc-self/order-lifecycle/internal/natsclient"
	"github.com/arc-self/order-lifecycle/internal/relay"
	"github.com/arc-self/order-lifecycle/internal/tracing"
)

const (
	createInterval = 5 * time.Second
	updateInterval = 8 * time.Second
	deleteInterval = 20 * time.Second
	maxUsers       = 50
)

var (
	firstNames = []string{"Alice", "Bob", "Charlie", "Diana", "Eve", "Frank", "Grace", "Henry"}
	lastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller"}
)

type mockUser struct {
	UserID string
	Email  string
	Name   string
	Status string
}

// producer holds the simulated user directory and publishes user.* events.
type producer struct {
	mu        sync.Mutex
	users     map[string]mockUser
	publisher relay.Publisher
	logger    *zap.Logger
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	natsURL := envOr("NATS_URL", "nats://localhost:4222")
	natsClient, err := natsclient.NewClient(natsURL, logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer natsClient.Close()
	if err := natsClient.ProvisionStreams(); err != nil {
		logger.Fatal("NATS stream provisioning failed", zap.Error(err))
	}

	p := &producer{
		users:     make(map[string]mockUser),
		publisher: relay.NewPublisher(natsClient),
		logger:    logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(3)
	go p.loop(ctx, &wg, "create-users", createInterval, p.createUser)
	go p.loop(ctx, &wg, "update-users", updateInterval, p.updateUser)
	go p.loop(ctx, &wg, "delete-users", deleteInterval, p.deleteUser)

	logger.Info("mock user producer starting",
		zap.Duration("create_interval", createInterval),
		zap.Duration("update_interval", updateInterval),
		zap.Duration("delete_interval", deleteInterval),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("cancelling background tasks")
	cancel()
	wg.Wait()
	logger.Info("mock user producer shut down")
}

func (p *producer) loop(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, step func(context.Context) error) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := step(ctx); err != nil {
				p.logger.Error("producer step failed", zap.String("loop", name), zap.Error(err))
			}
		}
	}
}

func (p *producer) createUser(ctx context.Context) error {
	p.mu.Lock()
	if len(p.users) >= maxUsers {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	first := firstNames[rand.Intn(len(firstNames))]
	last := lastNames[rand.Intn(len(lastNames))]
	user := mockUser{
		UserID: fmt.Sprintf("user_%08x", rand.Uint32()),
		Email:  fmt.Sprintf("%s.%s@example.com", lowerCase(first), lowerCase(last)),
		Name:   first + " " + last,
		Status: "active",
	}

	now := time.Now().UTC()
	if err := p.publish(ctx, domain.EventUserCreated, user.UserID, domain.UserEventData{
		UserID:    user.UserID,
		Email:     user.Email,
		Name:      user.Name,
		Status:    user.Status,
		Timestamp: now.Format(time.RFC3339),
	}); err != nil {
		return err
	}

	p.mu.Lock()
	p.users[user.UserID] = user
	p.mu.Unlock()
	p.logger.Info("user.created published", zap.String("user_id", user.UserID))
	return nil
}

func (p *producer) updateUser(ctx context.Context) error {
	p.mu.Lock()
	user, ok := p.pickRandomLocked()
	if !ok {
		p.mu.Unlock()
		return nil
	}
	if rand.Float64() < 0.7 {
		user.Name += " (Updated)"
	} else {
		statuses := []string{"active", "inactive", "suspended"}
		user.Status = statuses[rand.Intn(len(statuses))]
	}
	p.users[user.UserID] = user
	p.mu.Unlock()

	if err := p.publish(ctx, domain.EventUserUpdated, user.UserID, domain.UserEventData{
		UserID:    user.UserID,
		Email:     user.Email,
		Name:      user.Name,
		Status:    user.Status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}
	p.logger.Info("user.updated published", zap.String("user_id", user.UserID))
	return nil
}

func (p *producer) deleteUser(ctx context.Context) error {
	p.mu.Lock()
	user, ok := p.pickRandomLocked()
	if !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.users, user.UserID)
	p.mu.Unlock()

	reason := "simulated_deletion"
	if err := p.publish(ctx, domain.EventUserDeleted, user.UserID, domain.UserDeletedData{
		UserID:    user.UserID,
		DeletedAt: time.Now().UTC().Format(time.RFC3339),
		Reason:    &reason,
	}); err != nil {
		p.mu.Lock()
		p.users[user.UserID] = user // publish failed, keep simulating the user as still present
		p.mu.Unlock()
		return err
	}
	p.logger.Info("user.deleted published", zap.String("user_id", user.UserID))
	return nil
}

// pickRandomLocked returns a random user; caller must hold p.mu.
func (p *producer) pickRandomLocked() (mockUser, bool) {
	if len(p.users) == 0 {
		return mockUser{}, false
	}
	n := rand.Intn(len(p.users))
	i := 0
	for _, u := range p.users {
		if i == n {
			return u, true
		}
		i++
	}
	return mockUser{}, false
}

func (p *producer) publish(ctx context.Context, eventType, userID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	tc := tracing.New()
	envelope := domain.Envelope{
		EventID:   fmt.Sprintf("%s-%d", userID, time.Now().UnixNano()),
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   domain.EnvelopeVersion,
		Data:      raw,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return p.publisher.Publish(ctx, eventType, payload, userID, tracing.Format(tc))
}

func lowerCase(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
