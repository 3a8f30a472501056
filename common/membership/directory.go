package membership

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/couchbase/cluster-ready/common/coordination"
	"go.uber.org/zap"
)

// DefaultRegistrationPath is where brokers register themselves by id.
const DefaultRegistrationPath = "/brokers/ids"

// sessionTimeoutMultiplier keeps the session alive for longer than all of the
// steps which are performed with it.
const sessionTimeoutMultiplier = 10

type MemberRecord struct {
	ID       string
	Metadata []byte
}

type DirectoryOptions struct {
	Logger           *zap.Logger
	Dialer           coordination.Dialer
	Credentials      *coordination.Credentials
	RegistrationPath string
}

// Directory discovers the members registered in a coordination namespace.
type Directory struct {
	logger           *zap.Logger
	dialer           coordination.Dialer
	credentials      *coordination.Credentials
	registrationPath string
}

func NewDirectory(opts DirectoryOptions) *Directory {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registrationPath := opts.RegistrationPath
	if registrationPath == "" {
		registrationPath = DefaultRegistrationPath
	}

	return &Directory{
		logger:           logger.Named("directory"),
		dialer:           opts.Dialer,
		credentials:      opts.Credentials,
		registrationPath: registrationPath,
	}
}

// ReadMemberMetadata connects to the ensemble, waits for the registration
// path and its members to appear, and returns the metadata of every member
// which has any.  Each wait is bounded by timeout.
func (d *Directory) ReadMemberMetadata(
	ctx context.Context,
	connectString coordination.ConnectString,
	timeout time.Duration,
) ([]MemberRecord, error) {
	logger := d.logger.With(zap.Stringer("connectString", connectString))

	session, events, err := d.dialer.Dial(ctx, connectString, coordination.DialOptions{
		SessionTimeout: timeout * sessionTimeoutMultiplier,
		Credentials:    d.credentials,
		Logger:         d.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCoordinationTimeout, err)
	}
	defer func() {
		err := session.Close()
		if err != nil {
			logger.Debug("failed to close coordination session", zap.Error(err))
		}
	}()

	watcher := coordination.NewConnectionWatcher(d.credentials.AuthRequired())
	watcher.Watch(events)

	outcome := watcher.Wait(ctx, timeout)
	if !outcome.Successful() {
		logger.Warn("coordination session was not established", zap.Stringer("outcome", outcome.Kind))
		return nil, fmt.Errorf("%w: %w", ErrCoordinationTimeout, outcome.Err())
	}

	err = d.awaitRegistrationPath(ctx, session, timeout)
	if err != nil {
		return nil, err
	}

	memberIDs, err := d.awaitMemberIDs(ctx, session, timeout)
	if err != nil {
		return nil, err
	}

	records := make([]MemberRecord, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		data, err := session.Get(ctx, path.Join(d.registrationPath, memberID))
		if err != nil || len(data) == 0 {
			logger.Debug("skipping member without metadata",
				zap.String("memberId", memberID),
				zap.Error(err))
			continue
		}

		records = append(records, MemberRecord{
			ID:       memberID,
			Metadata: data,
		})
	}

	return records, nil
}

// awaitRegistrationPath releases as soon as either the synchronous existence
// check or the watch it leaves behind observes the path.  Only a creation
// event releases the watch side.
func (d *Directory) awaitRegistrationPath(ctx context.Context, session coordination.Session, timeout time.Duration) error {
	gate := coordination.NewOneShot[struct{}]()

	exists, watchCh, err := session.ExistsW(ctx, d.registrationPath)
	if err != nil {
		return fmt.Errorf("failed to check registration path %s: %w", d.registrationPath, err)
	}

	go func() {
		select {
		case evt, ok := <-watchCh:
			if ok && evt.Type == coordination.NodeEventCreated {
				gate.Fire(struct{}{})
			}
		case <-gate.Done():
		}
	}()

	if exists {
		gate.Fire(struct{}{})
	}

	_, ok := gate.Wait(ctx, timeout)
	if !ok {
		return fmt.Errorf("%w: %s does not exist", ErrRegistrationTimeout, d.registrationPath)
	}

	return nil
}

// awaitMemberIDs releases when the child listing is non-empty or the children
// watch reports a change to the child list, after which the listing must be
// read again.
func (d *Directory) awaitMemberIDs(ctx context.Context, session coordination.Session, timeout time.Duration) ([]string, error) {
	gate := coordination.NewOneShot[[]string]()

	children, watchCh, err := session.ChildrenW(ctx, d.registrationPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list registration path %s: %w", d.registrationPath, err)
	}

	go func() {
		select {
		case evt, ok := <-watchCh:
			if ok && evt.Type == coordination.NodeEventChildrenChanged {
				gate.Fire(nil)
			}
		case <-gate.Done():
		}
	}()

	if len(children) > 0 {
		gate.Fire(children)
	}

	memberIDs, ok := gate.Wait(ctx, timeout)
	if !ok {
		return nil, fmt.Errorf("%w: no members under %s", ErrRegistrationTimeout, d.registrationPath)
	}

	if len(memberIDs) == 0 {
		memberIDs, err = session.Children(ctx, d.registrationPath)
		if err != nil && !errors.Is(err, coordination.ErrNoNode) {
			return nil, fmt.Errorf("failed to list registration path %s: %w", d.registrationPath, err)
		}
	}

	return memberIDs, nil
}

// BootstrapEndpoints returns the endpoints of the first registered member.
func (d *Directory) BootstrapEndpoints(
	ctx context.Context,
	connectString coordination.ConnectString,
	timeout time.Duration,
) (EndpointMap, error) {
	records, err := d.ReadMemberMetadata(ctx, connectString, timeout)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, ErrNoMembers
	}

	return ParseEndpointMap(records[0].Metadata)
}
