package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const presenceConnPrefix = "presence:conn:"

// PresenceStore tracks live gateway connections per user across every node.
// Each user owns a hash of client id to connect time; the hash expires unless
// heartbeats keep it alive, so a crashed node cannot pin a user online.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{client: client, ttl: ttl}
}

func presenceKey(userID uuid.UUID) string {
	return presenceConnPrefix + userID.String()
}

func (p *PresenceStore) Connected(ctx context.Context, userID uuid.UUID, clientID string) error {
	key := presenceKey(userID)
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, clientID, strconv.FormatInt(time.Now().Unix(), 10))
	pipe.Expire(ctx, key, p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

var disconnectScript = goredis.NewScript(`
	redis.call('HDEL', KEYS[1], ARGV[1])
	local remaining = redis.call('HLEN', KEYS[1])
	if remaining == 0 then
		redis.call('DEL', KEYS[1])
	end
	return remaining
`)

// Disconnected drops one connection and reports how many remain for the user.
func (p *PresenceStore) Disconnected(ctx context.Context, userID uuid.UUID, clientID string) (int64, error) {
	return disconnectScript.Run(ctx, p.client, []string{presenceKey(userID)}, clientID).Int64()
}

func (p *PresenceStore) Heartbeat(ctx context.Context, userID uuid.UUID) error {
	return p.client.Expire(ctx, presenceKey(userID), p.ttl).Err()
}

func (p *PresenceStore) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := p.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OnlineAmong filters userIDs down to those with at least one live connection,
// preserving input order.
func (p *PresenceStore) OnlineAmong(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	pipe := p.client.Pipeline()
	cmds := make([]*goredis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	online := make([]uuid.UUID, 0, len(userIDs))
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			online = append(online, userIDs[i])
		}
	}
	return online, nil
}

func (p *PresenceStore) ConnectionCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return p.client.HLen(ctx, presenceKey(userID)).Result()
}
