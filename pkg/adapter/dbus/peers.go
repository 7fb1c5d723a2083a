package dbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/dispatch"
	"github.com/marmos91/dittostorage/pkg/future"
)

const peerQueryTimeout = 10 * time.Second

// credentialsQuery returns the GetConnectionCredentials dictionary of a
// bus client.
type credentialsQuery func(ctx context.Context, sender string) (map[string]godbus.Variant, error)

func busCredentialsQuery(conn *godbus.Conn) credentialsQuery {
	return func(ctx context.Context, sender string) (map[string]godbus.Variant, error) {
		var creds map[string]godbus.Variant
		err := conn.BusObject().CallWithContext(ctx,
			"org.freedesktop.DBus.GetConnectionCredentials", 0, sender).Store(&creds)
		return creds, err
	}
}

// PeerCache resolves bus clients to process identities and remembers the
// answer until the client leaves the bus. Concurrent lookups for the same
// client share one query; failed lookups are not cached.
type PeerCache struct {
	query credentialsQuery

	mu    sync.Mutex
	peers map[string]*future.Future[dispatch.PeerInfo]
}

var _ dispatch.PeerIdentityResolver = (*PeerCache)(nil)

func newPeerCache(query credentialsQuery) *PeerCache {
	return &PeerCache{query: query, peers: make(map[string]*future.Future[dispatch.PeerInfo])}
}

func (c *PeerCache) Resolve(sender string) *future.Future[dispatch.PeerInfo] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.peers[sender]; ok {
		return f
	}

	f, p := future.New[dispatch.PeerInfo]()
	c.peers[sender] = f
	go func() {
		info, err := c.lookup(sender)
		if err != nil {
			c.mu.Lock()
			if c.peers[sender] == f {
				delete(c.peers, sender)
			}
			c.mu.Unlock()
		}
		p.Complete(info, err)
	}()
	return f
}

func (c *PeerCache) lookup(sender string) (dispatch.PeerInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), peerQueryTimeout)
	defer cancel()

	creds, err := c.query(ctx, sender)
	if err != nil {
		return dispatch.PeerInfo{}, fmt.Errorf("credentials of %s: %w", sender, err)
	}
	info, err := parseCredentials(creds)
	if err != nil {
		return dispatch.PeerInfo{}, fmt.Errorf("credentials of %s: %w", sender, err)
	}
	logger.Debug("Peer %s is uid=%d pid=%d label=%q", sender, info.UID, info.PID, info.SecurityLabel)
	return info, nil
}

// Forget drops the cached identity of a client that left the bus.
func (c *PeerCache) Forget(sender string) {
	c.mu.Lock()
	delete(c.peers, sender)
	c.mu.Unlock()
}

// Len returns the number of cached or pending lookups.
func (c *PeerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}

func parseCredentials(creds map[string]godbus.Variant) (dispatch.PeerInfo, error) {
	var info dispatch.PeerInfo

	uid, ok := creds["UnixUserID"].Value().(uint32)
	if !ok {
		return info, fmt.Errorf("no UnixUserID")
	}
	pid, ok := creds["ProcessID"].Value().(uint32)
	if !ok {
		return info, fmt.Errorf("no ProcessID")
	}
	info.UID = uid
	info.PID = pid

	// The label is a byte array that usually carries a trailing NUL.
	if label, ok := creds["LinuxSecurityLabel"].Value().([]byte); ok {
		info.SecurityLabel = strings.TrimRight(string(label), "\x00")
	}
	return info, nil
}
