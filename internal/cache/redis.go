package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avreline/repairbooking/config"
	"github.com/avreline/repairbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client     *redis.Client
	devicesTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, devicesTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:     redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		devicesTTL: devicesTTL,
	}
}

func (c *RedisCache) GetDevices(ctx context.Context) ([]domain.Device, error) {
	data, err := c.client.Get(ctx, devicesKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var devices []domain.Device
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *RedisCache) SetDevices(ctx context.Context, devices []domain.Device) error {
	payload, err := json.Marshal(devices)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, devicesKey(), payload, c.devicesTTL).Err()
}

// AcquireSlotLock is the fast-path guard in front of the database CAS: the
// SetNX either claims the (date,time) pair for sessionID or reports it taken.
func (c *RedisCache) AcquireSlotLock(ctx context.Context, date, timeOfDay, sessionID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, slotLockKey(date, timeOfDay), sessionID, ttl).Result()
}

func (c *RedisCache) ReleaseSlotLock(ctx context.Context, date, timeOfDay string) error {
	return c.client.Del(ctx, slotLockKey(date, timeOfDay)).Err()
}

func devicesKey() string {
	return "cache:devices"
}

func slotLockKey(date, timeOfDay string) string {
	return fmt.Sprintf("lock:slot:%s:%s", date, timeOfDay)
}
