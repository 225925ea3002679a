// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

// Package mongo implements auth repositories on MongoDB. Documents live in
// the users collection with camelCase field names.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codevault/codevault/internal/auth"
)

// CollectionName is the collection holding account documents.
const CollectionName = "users"

// accountDoc is the stored shape of an account.
type accountDoc struct {
	ID                   string     `bson:"_id"`
	Username             string     `bson:"username"`
	UsernameLower        string     `bson:"usernameLower"`
	Email                string     `bson:"email"`
	Password             string     `bson:"password"`
	ResetPasswordToken   *string    `bson:"resetPasswordToken,omitempty"`
	ResetPasswordExpires *time.Time `bson:"resetPasswordExpires,omitempty"`
	CreatedAt            time.Time  `bson:"createdAt"`
	UpdatedAt            time.Time  `bson:"updatedAt"`
}

func toDoc(a *auth.Account) accountDoc {
	doc := accountDoc{
		ID:            a.ID.String(),
		Username:      a.Username,
		UsernameLower: auth.FoldUsername(a.Username),
		Email:         auth.NormalizeEmail(a.Email),
		Password:      a.PasswordHash,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.Reset != nil {
		digest, expires := a.Reset.Digest, a.Reset.ExpiresAt
		doc.ResetPasswordToken = &digest
		doc.ResetPasswordExpires = &expires
	}
	return doc
}

func (d *accountDoc) toAccount() (*auth.Account, error) {
	id, err := ulid.Parse(d.ID)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", d.ID).Wrap(err)
	}
	account := &auth.Account{
		ID:           id,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	if d.ResetPasswordToken != nil && d.ResetPasswordExpires != nil {
		account.Reset = &auth.PendingReset{
			Digest:    *d.ResetPasswordToken,
			ExpiresAt: d.ResetPasswordExpires.UTC(),
		}
	}
	return account, nil
}

// AccountRepository implements auth.AccountRepository using MongoDB.
type AccountRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a repository over db's users collection.
func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{coll: db.Collection(CollectionName), now: time.Now}
}

// EnsureIndexes creates the unique indexes the repository relies on for
// duplicate detection. It is idempotent.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "usernameLower", Value: 1}},
			Options: options.Index().SetName("usernameLower_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "resetPasswordToken", Value: 1}},
			Options: options.Index().
				SetName("resetPasswordToken_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"resetPasswordToken": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return oops.Code("ACCOUNT_INDEX_FAILED").
			With("collection", CollectionName).
			Wrap(err)
	}
	return nil
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	if _, err := r.coll.InsertOne(ctx, toDoc(account)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return oops.Code("ACCOUNT_DUPLICATE").
				With("account_id", account.ID.String()).
				Wrap(auth.ErrDuplicate)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()}, "id", id.String())
}

// GetByEmail retrieves an account by email. Emails are stored normalized.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return r.findOne(ctx, bson.M{"email": auth.NormalizeEmail(email)}, "email", email)
}

// GetByUsername retrieves an account by username, ignoring case.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	return r.findOne(ctx, bson.M{"usernameLower": auth.FoldUsername(username)}, "username", username)
}

// GetByResetDigest retrieves the account holding an unexpired reset with
// the given digest.
func (r *AccountRepository) GetByResetDigest(ctx context.Context, digest string, now time.Time) (*auth.Account, error) {
	return r.findOne(ctx, resetFilter(digest, now), "lookup", "reset digest")
}

func resetFilter(digest string, now time.Time) bson.M {
	return bson.M{
		"resetPasswordToken":   digest,
		"resetPasswordExpires": bson.M{"$gt": now.UTC()},
	}
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M, key, value string) (*auth.Account, error) {
	var doc accountDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With(key, value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by "+key).
			With(key, value).
			Wrap(err)
	}
	return doc.toAccount()
}

// ExistsByUsernameOrEmail reports whether the username or email is taken.
func (r *AccountRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"usernameLower": auth.FoldUsername(username)},
		bson.M{"email": auth.NormalizeEmail(email)},
	}}
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, oops.Code("ACCOUNT_EXISTS_FAILED").
			With("operation", "check account existence").
			Wrap(err)
	}
	return n > 0, nil
}

// UpdatePassword updates only the password hash for an account.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.updateByID(ctx, "update password", id, bson.M{
		"$set": bson.M{"password": passwordHash, "updatedAt": r.now().UTC()},
	})
}

// SetPendingReset records a reset request, replacing any earlier one.
func (r *AccountRepository) SetPendingReset(ctx context.Context, id ulid.ULID, reset auth.PendingReset) error {
	return r.updateByID(ctx, "set pending reset", id, bson.M{
		"$set": bson.M{
			"resetPasswordToken":   reset.Digest,
			"resetPasswordExpires": reset.ExpiresAt.UTC(),
			"updatedAt":            r.now().UTC(),
		},
	})
}

// ClearPendingReset removes the pending reset if it still has digest.
// Matching no document means a newer request replaced it.
func (r *AccountRepository) ClearPendingReset(ctx context.Context, id ulid.ULID, digest string) error {
	filter := bson.M{"_id": id.String(), "resetPasswordToken": digest}
	if _, err := r.coll.UpdateOne(ctx, filter, clearReset(bson.M{"updatedAt": r.now().UTC()})); err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "clear pending reset").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

func clearReset(set bson.M) bson.M {
	return bson.M{
		"$set":   set,
		"$unset": bson.M{"resetPasswordToken": "", "resetPasswordExpires": ""},
	}
}

func (r *AccountRepository) updateByID(ctx context.Context, operation string, id ulid.ULID, update bson.M) error {
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id.String()}, update)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if result.MatchedCount == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// CompleteReset swaps the password and clears the reset in a single
// findAndModify, so only one caller can redeem a digest.
func (r *AccountRepository) CompleteReset(ctx context.Context, digest, passwordHash string, now time.Time) (ulid.ULID, error) {
	update := clearReset(bson.M{"password": passwordHash, "updatedAt": now.UTC()})
	opts := options.FindOneAndUpdate().SetProjection(bson.M{"_id": 1})

	var doc struct {
		ID string `bson:"_id"`
	}
	err := r.coll.FindOneAndUpdate(ctx, resetFilter(digest, now), update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ulid.ULID{}, oops.Code("ACCOUNT_NOT_FOUND").
			With("lookup", "reset digest").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_RESET_FAILED").
			With("operation", "complete reset").
			Wrap(err)
	}

	id, err := ulid.Parse(doc.ID)
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_RESET_FAILED").
			With("operation", "parse account id").
			With("id", doc.ID).
			Wrap(err)
	}
	return id, nil
}
