package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"guardrail/internal/usage"
	"guardrail/pkg/domain"
	"guardrail/pkg/platform/sentinel"
)

// Amounts are stored as integer minor units. All keys of one account share
// the {account} hash tag so the scripts stay single-slot on a cluster.
const (
	keyPrefix      = "guardrail"
	periodIndexKey = keyPrefix + ":usage:periods"
	reservationTTL = 40 * 24 * time.Hour
)

func recordKey(accountID domain.AccountID, periodKey string) string {
	return fmt.Sprintf("%s:{%s}:usage:%s", keyPrefix, accountID, periodKey)
}

func extensionKey(accountID domain.AccountID) string {
	return fmt.Sprintf("%s:{%s}:ext", keyPrefix, accountID)
}

func reservationKey(accountID domain.AccountID, id domain.ReservationID) string {
	return fmt.Sprintf("%s:{%s}:resv:%s", keyPrefix, accountID, id)
}

func reservationIndexKey(id domain.ReservationID) string {
	return fmt.Sprintf("%s:resv-owner:%s", keyPrefix, id)
}

func periodMember(accountID domain.AccountID, periodKey string) string {
	return periodKey + "|" + accountID.String()
}

// reserveScript applies the extension-first check-and-increment.
// KEYS: day, month, ext, reservation. ARGV: amount, dailyCap, periodCap,
// nowMs, dayKey, monthKey, reservationTTLSeconds.
var reserveScript = redis.NewScript(`
local amount = tonumber(ARGV[1])
local dailyCap = tonumber(ARGV[2])
local periodCap = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local dayUsed = tonumber(redis.call('HGET', KEYS[1], 'amt') or '0')
local monthUsed = tonumber(redis.call('HGET', KEYS[2], 'amt') or '0')

local fromOd = 0
local req = ''
local ext = redis.call('HMGET', KEYS[3], 'req', 'granted', 'consumed', 'exp')
if ext[1] and tonumber(ext[4]) >= now then
	local remaining = tonumber(ext[2]) - tonumber(ext[3])
	if remaining > 0 then
		fromOd = math.min(remaining, amount)
		req = ext[1]
	end
end

local std = amount - fromOd
if dayUsed + std > dailyCap or monthUsed + std > periodCap then
	return {0}
end

local dayAmt = redis.call('HINCRBY', KEYS[1], 'amt', std)
local dayCnt = redis.call('HINCRBY', KEYS[1], 'cnt', 1)
redis.call('HSET', KEYS[1], 'upd', now)
local monthAmt = redis.call('HINCRBY', KEYS[2], 'amt', std)
local monthCnt = redis.call('HINCRBY', KEYS[2], 'cnt', 1)
redis.call('HSET', KEYS[2], 'upd', now)
if fromOd > 0 then
	redis.call('HINCRBY', KEYS[3], 'consumed', fromOd)
end

redis.call('HSET', KEYS[4], 'amt', amount, 'std', std, 'od', fromOd, 'req', req,
	'day', ARGV[5], 'month', ARGV[6], 'created', now, 'released', 0)
redis.call('EXPIRE', KEYS[4], tonumber(ARGV[7]))

return {1, std, fromOd, req, dayAmt, dayCnt, monthAmt, monthCnt}
`)

// releaseScript reverses a reservation once.
// KEYS: reservation, day, month, ext. ARGV: nowMs.
// Returns -1 when missing, -2 when already released.
var releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'released') ~= '0' then
	return -2
end
local now = tonumber(ARGV[1])
local std = tonumber(redis.call('HGET', KEYS[1], 'std'))
local od = tonumber(redis.call('HGET', KEYS[1], 'od'))
local req = redis.call('HGET', KEYS[1], 'req')

for i = 2, 3 do
	local amt = tonumber(redis.call('HGET', KEYS[i], 'amt') or '0')
	local cnt = tonumber(redis.call('HGET', KEYS[i], 'cnt') or '0')
	redis.call('HSET', KEYS[i], 'amt', math.max(amt - std, 0), 'cnt', math.max(cnt - 1, 0), 'upd', now)
end

if od > 0 then
	local ext = redis.call('HMGET', KEYS[4], 'req', 'consumed', 'exp')
	if ext[1] == req and tonumber(ext[3]) >= now then
		redis.call('HSET', KEYS[4], 'consumed', math.max(tonumber(ext[2]) - od, 0))
	end
end

redis.call('HSET', KEYS[1], 'released', now)
return 1
`)

// revokeScript deletes the extension only when it belongs to the request.
var revokeScript = redis.NewScript(`
local ext = redis.call('HMGET', KEYS[1], 'req', 'granted', 'consumed', 'exp')
if not ext[1] or ext[1] ~= ARGV[1] then
	return false
end
redis.call('DEL', KEYS[1])
return {ext[2], ext[3], ext[4]}
`)

// RedisStore keeps usage in Redis hashes mutated only by Lua scripts, which
// Redis runs atomically.
type RedisStore struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func unavailable(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", sentinel.ErrContention, err)
	}
	return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func parseInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

func parseString(v any) string {
	s, _ := v.(string)
	return s
}

func (s *RedisStore) readRecord(ctx context.Context, accountID domain.AccountID, key string) (usage.Record, error) {
	r := usage.Record{AccountID: accountID, PeriodKey: key}
	vals, err := s.client.HGetAll(ctx, recordKey(accountID, key)).Result()
	if err != nil {
		return usage.Record{}, unavailable(err)
	}
	if len(vals) == 0 {
		return r, nil
	}
	r.CumulativeAmount = domain.FromMinorUnits(parseInt(vals["amt"]))
	r.TransactionCount = parseInt(vals["cnt"])
	r.LastUpdatedAt = fromMillis(parseInt(vals["upd"]))
	return r, nil
}

func (s *RedisStore) readExtension(ctx context.Context, accountID domain.AccountID) (*usage.Extension, error) {
	vals, err := s.client.HGetAll(ctx, extensionKey(accountID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	requestID, err := uuid.Parse(vals["req"])
	if err != nil {
		return nil, fmt.Errorf("corrupt extension for %s: %w", accountID, err)
	}
	return &usage.Extension{
		AccountID: accountID,
		RequestID: domain.OverdraftRequestID(requestID),
		Granted:   domain.FromMinorUnits(parseInt(vals["granted"])),
		Consumed:  domain.FromMinorUnits(parseInt(vals["consumed"])),
		ExpiresAt: fromMillis(parseInt(vals["exp"])),
	}, nil
}

func (s *RedisStore) Snapshot(ctx context.Context, accountID domain.AccountID, dayKey, monthKey string) (usage.Snapshot, error) {
	day, err := s.readRecord(ctx, accountID, dayKey)
	if err != nil {
		return usage.Snapshot{}, err
	}
	month, err := s.readRecord(ctx, accountID, monthKey)
	if err != nil {
		return usage.Snapshot{}, err
	}
	ext, err := s.readExtension(ctx, accountID)
	if err != nil {
		return usage.Snapshot{}, err
	}
	return usage.Snapshot{Day: day, Month: month, Extension: ext}, nil
}

func (s *RedisStore) Reserve(ctx context.Context, cmd usage.ReserveCommand) (usage.Reservation, usage.Snapshot, error) {
	keys := []string{
		recordKey(cmd.AccountID, cmd.DayKey),
		recordKey(cmd.AccountID, cmd.MonthKey),
		extensionKey(cmd.AccountID),
		reservationKey(cmd.AccountID, cmd.ID),
	}
	out, err := reserveScript.Run(ctx, s.client, keys,
		domain.MinorUnits(cmd.Amount),
		domain.MinorUnits(cmd.Limits.DailyCap),
		domain.MinorUnits(cmd.Limits.PeriodCap),
		toMillis(cmd.Now),
		cmd.DayKey,
		cmd.MonthKey,
		int64(reservationTTL.Seconds()),
	).Slice()
	if err != nil {
		return usage.Reservation{}, usage.Snapshot{}, unavailable(err)
	}
	if len(out) == 0 || parseInt(out[0]) == 0 {
		return usage.Reservation{}, usage.Snapshot{}, sentinel.ErrInsufficient
	}

	created := fromMillis(toMillis(cmd.Now))
	res := usage.Reservation{
		ID:              cmd.ID,
		AccountID:       cmd.AccountID,
		Amount:          cmd.Amount,
		StandardAmount:  domain.FromMinorUnits(parseInt(out[1])),
		OverdraftAmount: domain.FromMinorUnits(parseInt(out[2])),
		DayKey:          cmd.DayKey,
		MonthKey:        cmd.MonthKey,
		CreatedAt:       created,
	}
	if req := parseString(out[3]); req != "" {
		requestID, err := uuid.Parse(req)
		if err != nil {
			return usage.Reservation{}, usage.Snapshot{}, fmt.Errorf("corrupt extension request id: %w", err)
		}
		res.OverdraftRequestID = domain.OverdraftRequestID(requestID)
	}

	// The owner index and the period index live outside the account slot.
	pipe := s.client.Pipeline()
	pipe.Set(ctx, reservationIndexKey(cmd.ID), cmd.AccountID.String(), reservationTTL)
	pipe.ZAdd(ctx, periodIndexKey,
		redis.Z{Member: periodMember(cmd.AccountID, cmd.DayKey)},
		redis.Z{Member: periodMember(cmd.AccountID, cmd.MonthKey)},
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return usage.Reservation{}, usage.Snapshot{}, unavailable(err)
	}

	ext, err := s.readExtension(ctx, cmd.AccountID)
	if err != nil {
		return usage.Reservation{}, usage.Snapshot{}, err
	}
	snap := usage.Snapshot{
		Day: usage.Record{
			AccountID:        cmd.AccountID,
			PeriodKey:        cmd.DayKey,
			CumulativeAmount: domain.FromMinorUnits(parseInt(out[4])),
			TransactionCount: parseInt(out[5]),
			LastUpdatedAt:    created,
		},
		Month: usage.Record{
			AccountID:        cmd.AccountID,
			PeriodKey:        cmd.MonthKey,
			CumulativeAmount: domain.FromMinorUnits(parseInt(out[6])),
			TransactionCount: parseInt(out[7]),
			LastUpdatedAt:    created,
		},
		Extension: ext,
	}
	return res, snap, nil
}

func (s *RedisStore) owner(ctx context.Context, id domain.ReservationID) (domain.AccountID, error) {
	owner, err := s.client.Get(ctx, reservationIndexKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.AccountID{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.AccountID{}, unavailable(err)
	}
	accountID, err := uuid.Parse(owner)
	if err != nil {
		return domain.AccountID{}, fmt.Errorf("corrupt reservation owner: %w", err)
	}
	return domain.AccountID(accountID), nil
}

func (s *RedisStore) FindReservation(ctx context.Context, id domain.ReservationID) (usage.Reservation, error) {
	accountID, err := s.owner(ctx, id)
	if err != nil {
		return usage.Reservation{}, err
	}
	vals, err := s.client.HGetAll(ctx, reservationKey(accountID, id)).Result()
	if err != nil {
		return usage.Reservation{}, unavailable(err)
	}
	if len(vals) == 0 {
		return usage.Reservation{}, sentinel.ErrNotFound
	}
	res := usage.Reservation{
		ID:              id,
		AccountID:       accountID,
		Amount:          domain.FromMinorUnits(parseInt(vals["amt"])),
		StandardAmount:  domain.FromMinorUnits(parseInt(vals["std"])),
		OverdraftAmount: domain.FromMinorUnits(parseInt(vals["od"])),
		DayKey:          vals["day"],
		MonthKey:        vals["month"],
		CreatedAt:       fromMillis(parseInt(vals["created"])),
	}
	if req := vals["req"]; req != "" {
		if requestID, err := uuid.Parse(req); err == nil {
			res.OverdraftRequestID = domain.OverdraftRequestID(requestID)
		}
	}
	if released := parseInt(vals["released"]); released != 0 {
		t := fromMillis(released)
		res.ReleasedAt = &t
	}
	return res, nil
}

func (s *RedisStore) Release(ctx context.Context, id domain.ReservationID, now time.Time) (usage.Reservation, error) {
	res, err := s.FindReservation(ctx, id)
	if err != nil {
		return usage.Reservation{}, err
	}
	keys := []string{
		reservationKey(res.AccountID, id),
		recordKey(res.AccountID, res.DayKey),
		recordKey(res.AccountID, res.MonthKey),
		extensionKey(res.AccountID),
	}
	code, err := releaseScript.Run(ctx, s.client, keys, toMillis(now)).Int64()
	if err != nil {
		return usage.Reservation{}, unavailable(err)
	}
	switch code {
	case -1:
		return usage.Reservation{}, sentinel.ErrNotFound
	case -2:
		return usage.Reservation{}, sentinel.ErrAlreadyUsed
	}
	released := fromMillis(toMillis(now))
	res.ReleasedAt = &released
	return res, nil
}

func (s *RedisStore) Grant(ctx context.Context, ext usage.Extension) error {
	key := extensionKey(ext.AccountID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"req", ext.RequestID.String(),
		"granted", domain.MinorUnits(ext.Granted),
		"consumed", domain.MinorUnits(ext.Consumed),
		"exp", toMillis(ext.ExpiresAt),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, accountID domain.AccountID, requestID domain.OverdraftRequestID) (usage.Extension, error) {
	out, err := revokeScript.Run(ctx, s.client, []string{extensionKey(accountID)}, requestID.String()).Slice()
	if errors.Is(err, redis.Nil) {
		return usage.Extension{}, sentinel.ErrNotFound
	}
	if err != nil {
		return usage.Extension{}, unavailable(err)
	}
	if len(out) < 3 {
		return usage.Extension{}, sentinel.ErrNotFound
	}
	return usage.Extension{
		AccountID: accountID,
		RequestID: requestID,
		Granted:   domain.FromMinorUnits(parseInt(out[0])),
		Consumed:  domain.FromMinorUnits(parseInt(out[1])),
		ExpiresAt: fromMillis(parseInt(out[2])),
	}, nil
}

func (s *RedisStore) ClosedRecords(ctx context.Context, beforeDay, beforeMonth string, limit int) ([]usage.Record, error) {
	var members []string
	for _, r := range [][2]string{{"[D:", "(" + beforeDay}, {"[M:", "(" + beforeMonth}} {
		found, err := s.client.ZRangeByLex(ctx, periodIndexKey, &redis.ZRangeBy{
			Min:   r[0],
			Max:   r[1],
			Count: int64(limit),
		}).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		members = append(members, found...)
	}
	if limit > 0 && len(members) > limit {
		members = members[:limit]
	}

	records := make([]usage.Record, 0, len(members))
	for _, m := range members {
		periodKey, owner, ok := strings.Cut(m, "|")
		if !ok {
			continue
		}
		accountID, err := uuid.Parse(owner)
		if err != nil {
			continue
		}
		r, err := s.readRecord(ctx, domain.AccountID(accountID), periodKey)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *RedisStore) DeleteRecords(ctx context.Context, records []usage.Record) error {
	if len(records) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, r := range records {
		pipe.Del(ctx, recordKey(r.AccountID, r.PeriodKey))
		pipe.ZRem(ctx, periodIndexKey, periodMember(r.AccountID, r.PeriodKey))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}
