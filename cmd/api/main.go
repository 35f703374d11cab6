package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warden.org/internal/httpapi"
	"warden.org/internal/identity"
	"warden.org/internal/obs"
	"warden.org/internal/permission"
	"warden.org/internal/provider"
	"warden.org/internal/store/pg"
	"warden.org/internal/sync"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("WARDEN_BUILD_COMMIT"))

	dsn := os.Getenv("WARDEN_PG_DSN")
	if dsn == "" {
		log.Fatal("missing DSN: set WARDEN_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	providerURL := os.Getenv("WARDEN_PROVIDER_URL")
	if providerURL == "" {
		log.Fatal("missing provider URL: set WARDEN_PROVIDER_URL")
	}
	providerClient, err := provider.NewHTTPClient(providerURL, os.Getenv("WARDEN_PROVIDER_TOKEN"))
	if err != nil {
		log.Fatalf("provider client: %v", err)
	}

	permSvc := permission.NewService(store, store)

	// Every first-seen user gets ADMIN on their own mirror record, applied
	// inside the creating transaction.
	identitySvc := identity.NewService(store, store, providerClient,
		identity.WithUserCreatedHook(func(ctx context.Context, userID string) error {
			_, err := permSvc.SetPermission(ctx, permission.GranteeUser, userID,
				permission.Target{EntityType: "USER", EntityID: userID},
				permission.CollectionAdmin)
			return err
		}),
	)

	evaluator := permission.NewEvaluator(identitySvc, store, permSvc)
	listener := sync.NewListener(identitySvc, permSvc, store)

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version,
		httpapi.WithPermissionService(permSvc),
		httpapi.WithEvaluator(evaluator),
		httpapi.WithIdentityService(identitySvc),
		httpapi.WithSyncListener(listener),
	)

	handler := httpapi.RequestID(
		httpapi.LoggingJSON(
			httpapi.SecurityHeaders(
				httpapi.CORS(
					httpapi.MaxBodyBytes(
						httpapi.RateLimit(api.Handler(), 50, 25),
						1<<20)))))

	addr := os.Getenv("WARDEN_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting warden-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
