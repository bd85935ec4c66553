package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/availability"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/technician"
)

// commitScript applies the job write and the paired technician
// claim/release as one atomic Lua unit: all checks run before any
// write, so a rejected commit leaves nothing behind. The release only
// frees a technician still bound to the committing job; a technician
// already re-claimed by another job keeps that claim.
//
// KEYS[1] job key ('' when the commit carries no job write)
// KEYS[2] claim technician key ('' when no claim)
// KEYS[3] release technician key ('' when no release)
// ARGV[1] job ID ('' when no job)
// ARGV[2] commit timestamp in RFC 3339 form
// ARGV[3..] job hash field/value pairs
var commitScript = goredis.NewScript(`
	local jobKey, claimKey, releaseKey = KEYS[1], KEYS[2], KEYS[3]
	local jobID = ARGV[1]

	if jobKey ~= '' and redis.call('EXISTS', jobKey) == 0 then
		return 'nojob'
	end
	if claimKey ~= '' then
		if redis.call('EXISTS', claimKey) == 0 then
			return 'missing'
		end
		local cur = redis.call('HGET', claimKey, 'current_job_id')
		if cur and cur ~= '' and cur ~= jobID then
			return 'conflict'
		end
	end
	if releaseKey ~= '' and redis.call('EXISTS', releaseKey) == 0 then
		return 'missing'
	end

	for i = 3, #ARGV - 1, 2 do
		redis.call('HSET', jobKey, ARGV[i], ARGV[i + 1])
	end
	if claimKey ~= '' then
		redis.call('HSET', claimKey,
			'is_available', '0', 'current_job_id', jobID, 'updated_at', ARGV[2])
	end
	if releaseKey ~= '' then
		local cur = redis.call('HGET', releaseKey, 'current_job_id')
		if jobID == '' or not cur or cur == '' or cur == jobID then
			redis.call('HSET', releaseKey,
				'is_available', '1', 'current_job_id', '', 'updated_at', ARGV[2])
		end
	end
	return 'ok'
`)

// CreateTechnician stores the technician as a Hash. New technicians
// always start available with no current job.
func (s *Store) CreateTechnician(ctx context.Context, tech *technician.Technician) error {
	tID := tech.ID.String()
	key := technicianKey(tID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: create technician exists: %w", err)
	}
	if exists > 0 {
		return fieldops.ErrTechnicianAlreadyExists
	}

	fields := technicianToMap(tech)
	fields["is_available"] = "1"
	fields["current_job_id"] = ""

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, technicianIDsKey, tID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/redis: create technician: %w", err)
	}
	return nil
}

// GetTechnician retrieves a technician by ID.
func (s *Store) GetTechnician(ctx context.Context, techID id.TechnicianID) (*technician.Technician, error) {
	return s.getTechnicianByKey(ctx, technicianKey(techID.String()))
}

// UpdateTechnician persists changes to an existing technician.
// Availability and the current job are written only through the
// availability commit.
func (s *Store) UpdateTechnician(ctx context.Context, tech *technician.Technician) error {
	key := technicianKey(tech.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: update technician exists: %w", err)
	}
	if exists == 0 {
		return fieldops.ErrTechnicianNotFound
	}

	fields := technicianToMap(tech)
	delete(fields, "is_available")
	delete(fields, "current_job_id")
	delete(fields, "created_at")
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.client.HSet(ctx, key, fields).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: update technician: %w", err)
	}
	return nil
}

// DeleteTechnician removes a technician by ID.
func (s *Store) DeleteTechnician(ctx context.Context, techID id.TechnicianID) error {
	tID := techID.String()
	key := technicianKey(tID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: delete technician exists: %w", err)
	}
	if exists == 0 {
		return fieldops.ErrTechnicianNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, technicianIDsKey, tID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/redis: delete technician: %w", err)
	}
	return nil
}

// UpdateTechnicianLocation writes only the position fields.
func (s *Store) UpdateTechnicianLocation(ctx context.Context, techID id.TechnicianID, pos geo.Point, at time.Time) error {
	key := technicianKey(techID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: location exists: %w", err)
	}
	if exists == 0 {
		return fieldops.ErrTechnicianNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"lat", strconv.FormatFloat(pos.Lat, 'f', -1, 64),
		"lon", strconv.FormatFloat(pos.Lon, 'f', -1, 64),
		"located_at", at.Format(time.RFC3339Nano),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: update technician location: %w", err)
	}
	return nil
}

// ListAvailableTechnicians returns free technicians ordered by name.
func (s *Store) ListAvailableTechnicians(ctx context.Context, opts technician.ListOpts) ([]*technician.Technician, error) {
	ids, err := s.client.SMembers(ctx, technicianIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: list technicians smembers: %w", err)
	}

	var techs []*technician.Technician
	for _, tID := range ids {
		tech, getErr := s.getTechnicianByKey(ctx, technicianKey(tID))
		if getErr != nil {
			continue
		}
		if !tech.IsAvailable {
			continue
		}
		if opts.CompanyID != "" && tech.CompanyID != opts.CompanyID {
			continue
		}
		techs = append(techs, tech)
	}

	for i := 1; i < len(techs); i++ {
		for k := i; k > 0 && techs[k].Name < techs[k-1].Name; k-- {
			techs[k], techs[k-1] = techs[k-1], techs[k]
		}
	}

	if opts.Offset > 0 && opts.Offset < len(techs) {
		techs = techs[opts.Offset:]
	} else if opts.Offset >= len(techs) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(techs) {
		techs = techs[:opts.Limit]
	}
	return techs, nil
}

// Commit applies a job write and the paired technician claim/release.
// The whole commit runs as one Lua script so a failure partway cannot
// leave a claimed technician without the job write. Domain rejections
// pass through; anything else is a transient persistence failure the
// arbiter may retry.
func (s *Store) Commit(ctx context.Context, c availability.Commit) error {
	err := s.commit(ctx, c)
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", fieldops.ErrPersistence, err)
}

func (s *Store) commit(ctx context.Context, c availability.Commit) error {
	keys, args := commitKeysArgs(c, time.Now().UTC())

	res, err := commitScript.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return fmt.Errorf("commit script: %w", err)
	}
	switch res {
	case "nojob":
		return fieldops.ErrJobNotFound
	case "missing":
		return fieldops.ErrTechnicianNotFound
	case "conflict":
		return fieldops.ErrTechnicianConflict
	}
	return nil
}

// commitKeysArgs assembles the KEYS and ARGV for commitScript so the
// job write and technician claim/release travel as one invocation.
func commitKeysArgs(c availability.Commit, now time.Time) ([]string, []interface{}) {
	keys := []string{"", "", ""}
	args := []interface{}{"", now.Format(time.RFC3339Nano)}

	if c.Job != nil {
		keys[0] = jobKey(c.Job.ID.String())
		args[0] = c.Job.ID.String()
		fields := jobToMap(c.Job)
		fields["updated_at"] = args[1]
		for f, v := range fields {
			args = append(args, f, v)
		}
	}
	if !c.Claim.IsNil() {
		keys[1] = technicianKey(c.Claim.String())
	}
	if !c.Release.IsNil() {
		keys[2] = technicianKey(c.Release.String())
	}
	return keys, args
}

// ── helpers ──

func technicianToMap(tech *technician.Technician) map[string]interface{} {
	m := map[string]interface{}{
		"id":             tech.ID.String(),
		"company_id":     tech.CompanyID,
		"name":           tech.Name,
		"skills":         marshalJSON(tech.Skills),
		"is_available":   boolField(tech.IsAvailable),
		"current_job_id": tech.CurrentJobID.String(),
		"lat":            strconv.FormatFloat(tech.Location.Lat, 'f', -1, 64),
		"lon":            strconv.FormatFloat(tech.Location.Lon, 'f', -1, 64),
		"created_at":     tech.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":     tech.UpdatedAt.Format(time.RFC3339Nano),
	}
	if tech.LocatedAt != nil {
		m["located_at"] = tech.LocatedAt.Format(time.RFC3339Nano)
	}
	return m
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *Store) getTechnicianByKey(ctx context.Context, key string) (*technician.Technician, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: get technician: %w", err)
	}
	if len(vals) == 0 {
		return nil, fieldops.ErrTechnicianNotFound
	}
	return mapToTechnician(vals)
}

func mapToTechnician(m map[string]string) (*technician.Technician, error) {
	tID, err := id.ParseTechnicianID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: parse technician id: %w", err)
	}

	lat, _ := strconv.ParseFloat(m["lat"], 64) //nolint:errcheck // best-effort parse from trusted Redis data
	lon, _ := strconv.ParseFloat(m["lon"], 64) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	tech := &technician.Technician{
		Entity: fieldops.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          tID,
		CompanyID:   m["company_id"],
		Name:        m["name"],
		Skills:      unmarshalStrings(m["skills"]),
		IsAvailable: m["is_available"] == "1",
	}
	tech.Location.Lat = lat
	tech.Location.Lon = lon

	if jid := m["current_job_id"]; jid != "" {
		tech.CurrentJobID, _ = id.ParseJobID(jid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["located_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		tech.LocatedAt = &t
	}

	return tech, nil
}
