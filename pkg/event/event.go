package event

import (
	"encoding/json"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/nais/rsarator/pkg/keys"
	"github.com/nais/rsarator/pkg/util/crypto"
)

// Event announces the public half of a key pair held by some host.
type Event struct {
	ID        string          `json:"@id"`
	EventName Name            `json:"@event_name"`
	Key       jose.JSONWebKey `json:"key"`
}

func NewEvent(eventName Name, keyID keys.ID, pub keys.PublicKey) (Event, error) {
	jwk, err := crypto.PublicJwk(keyID, pub)
	if err != nil {
		return Event{}, fmt.Errorf("creating %s event: %w", eventName, err)
	}
	return Event{ID: uuid.New().String(), EventName: eventName, Key: jwk}, nil
}

func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshalling event: %w", err)
	}
	return e, nil
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func (e Event) PublicKey() (keys.ID, keys.PublicKey, error) {
	return crypto.PublicKeyFromJwk(e.Key)
}

func (e Event) KeyID() keys.ID {
	return keys.ID(e.Key.KeyID)
}

func (e Event) String() string {
	return fmt.Sprintf("%s (%s)", e.EventName, e.ID)
}
