package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/ledgerlink/oauth-broker/internal/crypto"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure FirestoreStore implements the Store interface
var _ Store = (*FirestoreStore)(nil)

// FirestoreStore persists token sets in Firestore, one document per realm.
// Access and refresh tokens are encrypted at rest; a leaked Firestore export
// yields only ciphertext.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	encryptor  crypto.Encryptor
}

// tokenSetDoc is the Firestore document layout for a token set
type tokenSetDoc struct {
	Realm        string    `firestore:"realm"`
	AccessToken  string    `firestore:"access_token"`            // encrypted
	RefreshToken string    `firestore:"refresh_token,omitempty"` // encrypted
	TokenType    string    `firestore:"token_type,omitempty"`
	ExpiresAt    time.Time `firestore:"expires_at,omitempty"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

// NewFirestoreStore creates a Firestore-backed token store
func NewFirestoreStore(client *firestore.Client, collection string, encryptor crypto.Encryptor) (*FirestoreStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if collection == "" {
		collection = "oauth_broker_token_sets"
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
		encryptor:  encryptor,
	}, nil
}

// Put stores or replaces the token set for a realm
func (s *FirestoreStore) Put(ctx context.Context, tokens *TokenSet) error {
	if tokens == nil {
		return fmt.Errorf("token set cannot be nil")
	}
	if tokens.Realm == "" {
		return fmt.Errorf("token set realm cannot be empty")
	}

	doc, err := s.toDoc(tokens)
	if err != nil {
		return err
	}

	if _, err := s.client.Collection(s.collection).Doc(tokens.Realm).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store token set: %w", err)
	}
	return nil
}

// Get retrieves the token set for a realm
func (s *FirestoreStore) Get(ctx context.Context, realm string) (*TokenSet, error) {
	snap, err := s.client.Collection(s.collection).Doc(realm).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrTokenSetNotFound
		}
		return nil, fmt.Errorf("failed to get token set: %w", err)
	}

	var doc tokenSetDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token set: %w", err)
	}
	return s.fromDoc(&doc)
}

// Delete removes the token set for a realm
func (s *FirestoreStore) Delete(ctx context.Context, realm string) error {
	_, err := s.client.Collection(s.collection).Doc(realm).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete token set: %w", err)
	}
	return nil
}

func (s *FirestoreStore) toDoc(tokens *TokenSet) (*tokenSetDoc, error) {
	accessToken, err := s.encryptor.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting access token: %w", err)
	}

	doc := &tokenSetDoc{
		Realm:       tokens.Realm,
		AccessToken: accessToken,
		TokenType:   tokens.TokenType,
		ExpiresAt:   tokens.ExpiresAt,
		UpdatedAt:   tokens.UpdatedAt,
	}

	if tokens.RefreshToken != "" {
		refreshToken, err := s.encryptor.Encrypt(tokens.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypting refresh token: %w", err)
		}
		doc.RefreshToken = refreshToken
	}
	return doc, nil
}

func (s *FirestoreStore) fromDoc(doc *tokenSetDoc) (*TokenSet, error) {
	accessToken, err := s.encryptor.Decrypt(doc.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting access token: %w", err)
	}

	tokens := &TokenSet{
		Realm:       doc.Realm,
		AccessToken: accessToken,
		TokenType:   doc.TokenType,
		ExpiresAt:   doc.ExpiresAt,
		UpdatedAt:   doc.UpdatedAt,
	}

	if doc.RefreshToken != "" {
		refreshToken, err := s.encryptor.Decrypt(doc.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("decrypting refresh token: %w", err)
		}
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}
