package crypto

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	"github.com/nais/rsarator/pkg/keys"
)

const (
	KeyUseEncryption string = "enc"
)

func PublicJwk(id keys.ID, pub keys.PublicKey) (jose.JSONWebKey, error) {
	rsaPublicKey, err := ToRSAPublicKey(pub)
	if err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("mapping public key to jwk: %w", err)
	}
	return jose.JSONWebKey{
		Key:   rsaPublicKey,
		KeyID: id.String(),
		Use:   KeyUseEncryption,
	}, nil
}

func PublicKeyFromJwk(jwk jose.JSONWebKey) (keys.ID, keys.PublicKey, error) {
	rsaPublicKey, ok := jwk.Key.(*rsa.PublicKey)
	if !ok {
		return "", keys.PublicKey{}, fmt.Errorf("%w: jwk '%s' does not hold an RSA public key", keys.ErrInvalidArgument, jwk.KeyID)
	}
	return keys.ID(jwk.KeyID), FromRSAPublicKey(rsaPublicKey), nil
}

func MarshalPublicJwk(id keys.ID, pub keys.PublicKey) ([]byte, error) {
	jwk, err := PublicJwk(id, pub)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jwk)
}

func UnmarshalPublicJwk(data []byte) (keys.ID, keys.PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return "", keys.PublicKey{}, fmt.Errorf("unmarshalling jwk: %w", err)
	}
	return PublicKeyFromJwk(jwk)
}
