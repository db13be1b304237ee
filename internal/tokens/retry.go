package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/splatbot/nsoauth/internal/provider"
)

// maxExchangeRetries is the number of extra attempts an exchange gets after
// its first failure. Every attempt mints a fresh attestation token.
const maxExchangeRetries = 1

type mintFunc func(ctx context.Context) (*provider.FToken, error)

type exchangeFunc[T any] func(ctx context.Context, ft *provider.FToken) (T, error)

// retryOnce mints an F token and runs the exchange with it. If the exchange
// fails with a protocol error the pair is repeated exactly once with a newly
// minted token. Attestation failures and any other error kind end the loop
// immediately. onRetry is called before the second attempt.
func retryOnce[T any](ctx context.Context, mint mintFunc, exchange exchangeFunc[T], onRetry func(error)) (T, error) {
	var result T

	operation := func() error {
		ft, err := mint(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		out, err := exchange(ctx, ft)
		if err != nil {
			var perr *provider.Error
			if errors.As(err, &perr) && perr.Retryable() {
				return err
			}
			return backoff.Permanent(err)
		}

		result = out
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxExchangeRetries), ctx)

	notify := func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(err)
		}
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}

// logExchangeFailure reports an exchange that failed after its retry.
func logExchangeFailure(log *logrus.Entry, err error) {
	var perr *provider.Error
	if !errors.As(err, &perr) || perr.Kind != provider.KindProtocol {
		return
	}

	log = log.WithField("stage", perr.Stage)
	if perr.Payload != "" {
		log.Warnf("Error from Nintendo (in %s step):\n%s", perr.Stage, perr.Payload)
	}
	log.Warn("Re-running usually fixes this.")
}
