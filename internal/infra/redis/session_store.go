package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis implementation of app.SessionRepository.
// Layout:
//
//	quiz:code:{code}                  -> session id (the uniqueness authority)
//	quiz:session:{id}                 hash of session fields
//	quiz:session:{id}:questions       JSON snapshot
//	quiz:session:{id}:participants    hash userID -> participant JSON (score lives in :scores)
//	quiz:session:{id}:joined          zset userID by join sequence
//	quiz:session:{id}:seq             join sequence counter
//	quiz:session:{id}:scores          hash participantID -> score
//	quiz:session:{id}:answers         hash participantID|questionID -> answer JSON
//	quiz:host:{hostID}:sessions       zset session id by creation time
//
// Every multi-key write runs as a Lua script so it is atomic on the server.
// All session keys expire together after ttl; expiry frees the code.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[3], ARGV[2])
for i = 5, #ARGV, 2 do
  redis.call('HSET', KEYS[2], ARGV[i], ARGV[i + 1])
end
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
  redis.call('PEXPIRE', KEYS[2], ttl)
  redis.call('PEXPIRE', KEYS[3], ttl)
end
return 1
`)

var transitionScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return -1
end
for i = 2, #ARGV do
  if current == ARGV[i] then
    redis.call('HSET', KEYS[1], 'status', ARGV[1])
    return 1
  end
end
return 0
`)

var joinScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[5], 'status')
if not status then
  return false
end
if status == 'COMPLETED' then
  return 0
end
local existing = redis.call('HGET', KEYS[1], ARGV[1])
if existing then
  return existing
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
local seq = redis.call('INCR', KEYS[4])
redis.call('ZADD', KEYS[2], seq, ARGV[1])
redis.call('HSET', KEYS[3], ARGV[3], 0)
local ttl = redis.call('PTTL', KEYS[5])
if ttl > 0 then
  for i = 1, 4 do
    redis.call('PEXPIRE', KEYS[i], ttl)
  end
end
return ARGV[2]
`)

var answerScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return -3
end
if status ~= 'ACTIVE' then
  return -2
end
if redis.call('HEXISTS', KEYS[3], ARGV[3]) == 0 then
  return -4
end
if redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[4]) == 0 then
  return -1
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return redis.call('HINCRBY', KEYS[3], ARGV[3], ARGV[2])
`)

const (
	answerDuplicate          = -1
	answerNotActive          = -2
	answerSessionMissing     = -3
	answerParticipantMissing = -4
)

func (s *SessionStore) CreateSessionWithQuestions(ctx context.Context, session domain.Session, questions []domain.SessionQuestion) error {
	snapshot, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	args := []interface{}{
		session.ID,
		string(snapshot),
		session.CreatedAt.UnixMilli(),
		s.ttl.Milliseconds(),
	}
	args = append(args, sessionFields(session)...)

	keys := []string{
		s.codeKey(session.Code),
		s.sessionKey(session.ID),
		s.questionsKey(session.ID),
		s.hostKey(session.HostID),
	}
	created, err := createScript.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if created == 0 {
		return domain.ErrCodeTaken
	}
	return nil
}

func (s *SessionStore) FindSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	id, err := s.client.Get(ctx, s.codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("lookup code: %w", err)
	}
	return s.findSession(ctx, id)
}

func (s *SessionStore) findSession(ctx context.Context, id string) (domain.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if len(fields) == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return parseSession(fields)
}

func (s *SessionStore) ListSessionsByHost(ctx context.Context, hostID string) ([]domain.Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.hostKey(hostID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list host sessions: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load host sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(ids))
	var expired []interface{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			expired = append(expired, ids[i])
			continue
		}
		session, err := parseSession(fields)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if len(expired) > 0 {
		// sessions whose keys already expired; the listing stays correct if this fails
		if err := s.client.ZRem(ctx, s.hostKey(hostID), expired...).Err(); err != nil {
			slog.Warn("prune host session index", "host_id", hostID, "error", err)
		}
	}
	return sessions, nil
}

func (s *SessionStore) CodeExists(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, s.codeKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return n > 0, nil
}

func (s *SessionStore) UpdateSessionStatus(ctx context.Context, sessionID string, to domain.SessionStatus, from ...domain.SessionStatus) error {
	args := make([]interface{}, 0, len(from)+1)
	args = append(args, string(to))
	for _, f := range from {
		args = append(args, string(f))
	}
	res, err := transitionScript.Run(ctx, s.client, []string{s.sessionKey(sessionID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	switch res {
	case -1:
		return domain.ErrSessionNotFound
	case 0:
		return domain.ErrStatusConflict
	}
	return nil
}

func (s *SessionStore) SessionQuestions(ctx context.Context, sessionID string) ([]domain.SessionQuestion, error) {
	raw, err := s.client.Get(ctx, s.questionsKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var questions []domain.SessionQuestion
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return questions, nil
}

func (s *SessionStore) FindSessionQuestion(ctx context.Context, sessionID, questionID string) (domain.SessionQuestion, error) {
	questions, err := s.SessionQuestions(ctx, sessionID)
	if err != nil {
		return domain.SessionQuestion{}, err
	}
	for _, q := range questions {
		if q.QuestionID == questionID {
			return q, nil
		}
	}
	return domain.SessionQuestion{}, domain.ErrQuestionNotFound
}

func (s *SessionStore) UpsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	p.Score = 0
	payload, err := json.Marshal(p)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("marshal participant: %w", err)
	}
	keys := []string{
		s.participantsKey(p.SessionID),
		s.joinedKey(p.SessionID),
		s.scoresKey(p.SessionID),
		s.seqKey(p.SessionID),
		s.sessionKey(p.SessionID),
	}
	res, err := joinScript.Run(ctx, s.client, keys, p.UserID, string(payload), p.ID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("upsert participant: %w", err)
	}
	raw, ok := res.(string)
	if !ok {
		// 0: the session is COMPLETED
		return domain.Participant{}, domain.ErrSessionEnded
	}

	var stored domain.Participant
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return domain.Participant{}, fmt.Errorf("unmarshal participant: %w", err)
	}
	score, err := s.client.HGet(ctx, s.scoresKey(p.SessionID), stored.ID).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Participant{}, fmt.Errorf("load score: %w", err)
	}
	stored.Score = score
	return stored, nil
}

func (s *SessionStore) FindParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error) {
	raw, err := s.client.HGet(ctx, s.participantsKey(sessionID), userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("load participant: %w", err)
	}
	var p domain.Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Participant{}, fmt.Errorf("unmarshal participant: %w", err)
	}
	score, err := s.client.HGet(ctx, s.scoresKey(sessionID), p.ID).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Participant{}, fmt.Errorf("load score: %w", err)
	}
	p.Score = score
	return p, nil
}

func (s *SessionStore) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	userIDs, err := s.client.ZRevRange(ctx, s.joinedKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list joined: %w", err)
	}
	if len(userIDs) == 0 {
		return []domain.Participant{}, nil
	}

	var rows *redis.SliceCmd
	var scores *redis.MapStringStringCmd
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		rows = pipe.HMGet(ctx, s.participantsKey(sessionID), userIDs...)
		scores = pipe.HGetAll(ctx, s.scoresKey(sessionID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	participants := make([]domain.Participant, 0, len(userIDs))
	for _, row := range rows.Val() {
		raw, ok := row.(string)
		if !ok {
			continue
		}
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal participant: %w", err)
		}
		if v, ok := scores.Val()[p.ID]; ok {
			score, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("parse score of %s: %w", p.ID, err)
			}
			p.Score = score
		}
		participants = append(participants, p)
	}
	return participants, nil
}

func (s *SessionStore) RecordAnswer(ctx context.Context, answer domain.AnswerRecord) (int, error) {
	payload, err := json.Marshal(answer)
	if err != nil {
		return 0, fmt.Errorf("marshal answer: %w", err)
	}
	keys := []string{
		s.sessionKey(answer.SessionID),
		s.answersKey(answer.SessionID),
		s.scoresKey(answer.SessionID),
	}
	field := answer.ParticipantID + "|" + answer.QuestionID
	res, err := answerScript.Run(ctx, s.client, keys, field, answer.Points, answer.ParticipantID, string(payload)).Int64()
	if err != nil {
		return 0, fmt.Errorf("record answer: %w", err)
	}
	switch res {
	case answerDuplicate:
		return 0, domain.ErrAlreadyAnswered
	case answerNotActive:
		return 0, domain.ErrSessionNotActive
	case answerSessionMissing:
		return 0, domain.ErrSessionNotFound
	case answerParticipantMissing:
		return 0, domain.ErrParticipantNotFound
	}
	return int(res), nil
}

func sessionFields(session domain.Session) []interface{} {
	shuffle := "0"
	if session.Shuffle {
		shuffle = "1"
	}
	return []interface{}{
		"id", session.ID,
		"code", session.Code,
		"title", session.Title,
		"host_id", session.HostID,
		"category_id", session.CategoryID,
		"status", string(session.Status),
		"timer", session.TimerPerQuestion,
		"shuffle", shuffle,
		"total", session.TotalQuestions,
		"created_at", session.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseSession(fields map[string]string) (domain.Session, error) {
	timer, err := strconv.Atoi(fields["timer"])
	if err != nil {
		return domain.Session{}, fmt.Errorf("parse timer: %w", err)
	}
	total, err := strconv.Atoi(fields["total"])
	if err != nil {
		return domain.Session{}, fmt.Errorf("parse total: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return domain.Session{}, fmt.Errorf("parse created_at: %w", err)
	}
	return domain.Session{
		ID:               fields["id"],
		Code:             fields["code"],
		Title:            fields["title"],
		HostID:           fields["host_id"],
		CategoryID:       fields["category_id"],
		Status:           domain.SessionStatus(fields["status"]),
		TimerPerQuestion: timer,
		Shuffle:          fields["shuffle"] == "1",
		TotalQuestions:   total,
		CreatedAt:        createdAt,
	}, nil
}

func (s *SessionStore) codeKey(code string) string {
	return "quiz:code:" + code
}

func (s *SessionStore) sessionKey(id string) string {
	return "quiz:session:" + id
}

func (s *SessionStore) questionsKey(id string) string {
	return s.sessionKey(id) + ":questions"
}

func (s *SessionStore) participantsKey(id string) string {
	return s.sessionKey(id) + ":participants"
}

func (s *SessionStore) joinedKey(id string) string {
	return s.sessionKey(id) + ":joined"
}

func (s *SessionStore) seqKey(id string) string {
	return s.sessionKey(id) + ":seq"
}

func (s *SessionStore) scoresKey(id string) string {
	return s.sessionKey(id) + ":scores"
}

func (s *SessionStore) answersKey(id string) string {
	return s.sessionKey(id) + ":answers"
}

func (s *SessionStore) hostKey(hostID string) string {
	return "quiz:host:" + hostID + ":sessions"
}
