package etcdcoord

import (
	"context"
	"errors"
	"path"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
)

const minLeasePeriod = 5 * time.Second

type RegisterOptions struct {
	// Path is the full key of the registration, for example /brokers/ids/1.
	Path        string
	Data        []byte
	LeasePeriod time.Duration
}

// Registration is a lease backed node, it disappears when the lease is not
// kept alive.
type Registration struct {
	client  *etcd.Client
	key     string
	leaseID etcd.LeaseID
	cancel  context.CancelFunc
}

// Register publishes a node under a lease which is kept alive until Leave is
// called.  Member processes which use etcd for coordination register this way.
func Register(ctx context.Context, client *etcd.Client, opts RegisterOptions) (*Registration, error) {
	leasePeriod := minLeasePeriod
	if opts.LeasePeriod != 0 {
		if opts.LeasePeriod < minLeasePeriod {
			return nil, errors.New("lease period must be at least 5 seconds")
		}
		leasePeriod = opts.LeasePeriod
	}

	lease, err := client.Grant(ctx, int64(leasePeriod/time.Second))
	if err != nil {
		return nil, err
	}

	kaCtx, kaCancel := context.WithCancel(context.Background())
	leaseKaCh, err := client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		kaCancel()
		return nil, err
	}

	go func() {
		for range leaseKaCh {
		}
	}()

	key := path.Clean(opts.Path)
	_, err = client.Put(ctx, key, string(opts.Data), etcd.WithLease(lease.ID))
	if err != nil {
		kaCancel()
		return nil, err
	}

	return &Registration{
		client:  client,
		key:     key,
		leaseID: lease.ID,
		cancel:  kaCancel,
	}, nil
}

func (r *Registration) Leave(ctx context.Context) error {
	r.cancel()

	_, err := r.client.Revoke(ctx, r.leaseID)
	return err
}
