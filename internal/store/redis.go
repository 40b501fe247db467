package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/domain"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the room logs, e.g. "chat" gives "chat:42".
	Prefix string
}

// Redis keeps the room log as a list per room, address members as an
// expiring list and options/keys as hashes.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "chat"
	}
	log.Info().Str("module", "store.redis").Str("addr", opts.Addr).Msg("redis store ready")
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) logKey(room domain.RoomID) string { return r.prefix + ":" + string(room) }

func (r *Redis) addrKey(room domain.RoomID, addr string) string {
	return "ip_users:" + string(room) + ":" + addr
}

func (r *Redis) optionsKey(room domain.RoomID) string { return "room_options:" + string(room) }

const publicKeysKey = "public_keys"

func (r *Redis) AppendMessage(ctx context.Context, room domain.RoomID, msg domain.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.rdb.RPush(ctx, r.logKey(room), payload).Err(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *Redis) History(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	raw, err := r.rdb.LRange(ctx, r.logKey(room), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			log.Warn().Err(err).Str("module", "store.redis").Str("room", string(room)).Msg("skipping undecodable log entry")
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *Redis) SaveRoomOptions(ctx context.Context, opts domain.RoomOptions) error {
	err := r.rdb.HSet(ctx, r.optionsKey(opts.RoomID),
		"visibility", string(opts.Visibility),
		"max_connections_per_ip", opts.MaxConnectionsPerIP,
	).Err()
	if err != nil {
		return fmt.Errorf("save room options: %w", err)
	}
	return nil
}

func (r *Redis) LoadRoomOptions(ctx context.Context, room domain.RoomID) (domain.RoomOptions, error) {
	fields, err := r.rdb.HGetAll(ctx, r.optionsKey(room)).Result()
	if err != nil {
		return domain.RoomOptions{}, fmt.Errorf("load room options: %w", err)
	}
	if len(fields) == 0 {
		return domain.RoomOptions{}, ErrNotFound
	}
	opts := domain.RoomOptions{RoomID: room, Visibility: domain.Visibility(fields["visibility"])}
	if raw := fields["max_connections_per_ip"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.RoomOptions{}, fmt.Errorf("room options ceiling %q: %w", raw, err)
		}
		opts.MaxConnectionsPerIP = n
	}
	return opts, nil
}

func (r *Redis) AddAddressMember(ctx context.Context, room domain.RoomID, addr string, id domain.Identity, ttl time.Duration) error {
	key := r.addrKey(room, addr)
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, key, string(id))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add address member: %w", err)
	}
	return nil
}

func (r *Redis) RemoveAddressMember(ctx context.Context, room domain.RoomID, addr string, id domain.Identity) error {
	key := r.addrKey(room, addr)
	if err := r.rdb.LRem(ctx, key, 1, string(id)).Err(); err != nil {
		return fmt.Errorf("remove address member: %w", err)
	}
	// an emptied list is deleted by redis itself
	return nil
}

func (r *Redis) AddressMembers(ctx context.Context, room domain.RoomID, addr string) ([]domain.Identity, error) {
	raw, err := r.rdb.LRange(ctx, r.addrKey(room, addr), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read address members: %w", err)
	}
	out := make([]domain.Identity, 0, len(raw))
	// LPUSH keeps newest first; report in admission order.
	for i := len(raw) - 1; i >= 0; i-- {
		out = append(out, domain.Identity(raw[i]))
	}
	return out, nil
}

func (r *Redis) SavePublicKey(ctx context.Context, id domain.Identity, key string) error {
	if err := r.rdb.HSet(ctx, publicKeysKey, string(id), key).Err(); err != nil {
		return fmt.Errorf("save public key: %w", err)
	}
	return nil
}

func (r *Redis) PublicKey(ctx context.Context, id domain.Identity) (string, error) {
	key, err := r.rdb.HGet(ctx, publicKeysKey, string(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load public key: %w", err)
	}
	return key, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
