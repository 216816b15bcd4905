package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/wb-materials-bot/internal/form"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type Repo struct {
	db db.DBTX
}

func NewRepo(d db.DBTX) *Repo { return &Repo{db: d} }

func (r *Repo) Get(ctx context.Context, chatID int64) (*Item, error) {
	row := r.db.QueryRow(ctx, `SELECT state, payload, form FROM dialog_states WHERE chat_id = $1`, chatID)
	var state string
	var raw, rawForm []byte
	if err := row.Scan(&state, &raw, &rawForm); err != nil {
		// строки нет, значит состояния пока нет
		if errors.Is(err, pgx.ErrNoRows) {
			return &Item{ChatID: chatID, State: StateIdle, Payload: Payload{}}, nil
		}
		return nil, err
	}
	it := &Item{ChatID: chatID, State: State(state), Payload: Payload{}}
	_ = json.Unmarshal(raw, &it.Payload)
	if it.Payload == nil {
		it.Payload = Payload{}
	}
	it.Form, it.FormErr = decodeForm(rawForm)
	return it, nil
}

// decodeForm нечитаемая анкета отдаётся как *form.ConfigError, чтобы
// пользователю предложили начать заново.
func decodeForm(raw []byte) (*form.State, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var f form.State
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &form.ConfigError{Reason: "stored form cannot be decoded: " + err.Error()}
	}
	return &f, nil
}

// Set меняет состояние и payload, анкету не трогает.
func (r *Repo) Set(ctx context.Context, chatID int64, state State, payload Payload) error {
	raw, _ := json.Marshal(payload)
	_, err := r.db.Exec(ctx, `
		INSERT INTO dialog_states (chat_id, state, payload, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (chat_id) DO UPDATE SET
		  state=$2, payload=$3, updated_at=now()
	`, chatID, string(state), raw)
	return err
}

// Save сохраняет всё, включая анкету. Form == nil стирает анкету.
func (r *Repo) Save(ctx context.Context, it *Item) error {
	raw, _ := json.Marshal(it.Payload)
	var rawForm []byte
	if it.Form != nil {
		b, err := json.Marshal(it.Form)
		if err != nil {
			return fmt.Errorf("dialog: encode form: %w", err)
		}
		rawForm = b
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO dialog_states (chat_id, state, payload, form, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (chat_id) DO UPDATE SET
		  state=$2, payload=$3, form=$4, updated_at=now()
	`, it.ChatID, string(it.State), raw, rawForm)
	return err
}

func (r *Repo) Reset(ctx context.Context, chatID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM dialog_states WHERE chat_id = $1`, chatID)
	return err
}

// GetString Helper для безопасного чтения строк из payload
func GetString(p Payload, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt64 числа из payload после JSON приходят как float64.
func GetInt64(p Payload, key string) (int64, bool) {
	switch v := p[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
