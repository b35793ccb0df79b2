package localstore

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/gridnote/gridnote/internal/model"
)

//go:embed pending_sync_schema.json
var pendingSyncSchemaJSON []byte

var pendingSyncSchema = mustCompilePendingSyncSchema()

// PendingSync is the cross-session payload persisted on teardown while a
// push is still pending. It is replayed on the next login only when the
// logging-in user matches UserID.
type PendingSync struct {
	UserID     string            `json:"userId"`
	SavedAt    time.Time         `json:"savedAt"`
	Workspaces []model.Workspace `json:"workspaces"`
}

// SavePendingSync persists the payload under KeyPendingSync.
func SavePendingSync(kv KV, payload PendingSync) error {
	if payload.UserID == "" {
		return ErrInvalidInput
	}
	if payload.Workspaces == nil {
		payload.Workspaces = []model.Workspace{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return kv.Put(KeyPendingSync, data)
}

// TakePendingSync removes and returns the stored payload when it exists,
// parses, passes schema validation and belongs to userID. Malformed or
// mismatched payloads are discarded silently: a cross-account payload must
// never be replayed, and corruption must never block startup.
func TakePendingSync(kv KV, userID string) (*PendingSync, bool) {
	data, ok, err := kv.Get(KeyPendingSync)
	if err != nil || !ok {
		return nil, false
	}
	_ = kv.Delete(KeyPendingSync)

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	if err := pendingSyncSchema.Validate(inst); err != nil {
		return nil, false
	}
	var payload PendingSync
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false
	}
	if payload.UserID != userID {
		return nil, false
	}
	return &payload, true
}

func mustCompilePendingSyncSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(pendingSyncSchemaJSON))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("pending_sync_schema.json", doc); err != nil {
		panic(err)
	}
	return compiler.MustCompile("pending_sync_schema.json")
}
