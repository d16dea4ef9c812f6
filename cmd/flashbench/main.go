// Command flashbench seeds one voucher offer and fires concurrent purchases
// at it, then reports how the sale went. Settings come from FLASH_* env vars.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/flashcache/cmd/flashbench/bootstrap"
)

func main() {
	app := fx.New(
		bootstrap.Module,
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Invoke(
			startBench,
		),
	)

	if err := app.Start(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "flashbench: start:", err)
		os.Exit(1)
	}

	sig := <-app.Wait()

	if err := app.Stop(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "flashbench: stop:", err)
	}
	os.Exit(sig.ExitCode)
}
