package connection

import (
	"context"
	"errors"
	"fmt"

	"titan/internal/models"
)

// Presenter receives the outcome of a connect command
type Presenter interface {
	PresentConnectedSession(session *Session)
	PresentError(err error)
}

// WorkerFactory builds a fresh worker for each connect call
type WorkerFactory func(profile *models.ConnectionProfile) Executor

// Interactor turns connect commands into worker runs and routes the
// outcome to the presenter. Errors pass through unchanged.
type Interactor struct {
	presenter Presenter
	newWorker WorkerFactory
}

// NewInteractor creates an interactor
func NewInteractor(presenter Presenter, newWorker WorkerFactory) *Interactor {
	return &Interactor{presenter: presenter, newWorker: newWorker}
}

// Connect runs one worker for profile and calls exactly one presenter method
func (i *Interactor) Connect(ctx context.Context, profile *models.ConnectionProfile) {
	session, err := i.run(ctx, profile)
	if err != nil {
		i.presenter.PresentError(err)
		return
	}
	i.presenter.PresentConnectedSession(session)
}

// ConnectAsync runs Connect on a new goroutine. The returned channel closes
// once the presenter has been called.
func (i *Interactor) ConnectAsync(ctx context.Context, profile *models.ConnectionProfile) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		i.Connect(ctx, profile)
	}()
	return done
}

func (i *Interactor) run(ctx context.Context, profile *models.ConnectionProfile) (session *Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			session = nil
			err = fmt.Errorf("connect worker panicked: %v", r)
		}
	}()

	session, err = i.newWorker(profile).Execute(ctx)
	if err == nil && session == nil {
		err = errors.New("connect worker returned no session")
	}
	return session, err
}
