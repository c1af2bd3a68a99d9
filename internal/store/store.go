// Package store persists the ledger in Firestore. Every collection lives under
// users/{uid}, so a document owned by another user is indistinguishable from
// one that does not exist.
package store

import (
	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/budget-tracker/internal/errs"
)

func userCollection(client *firestore.Client, uid, name string) *firestore.CollectionRef {
	return client.Collection("users").Doc(uid).Collection(name)
}

// translate maps Firestore status codes to errs types. what names the
// entity in user-facing messages.
func translate(err error, op, what string) error {
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.NotFound:
		return errs.NewNotFoundError(what + " not found")
	case codes.AlreadyExists:
		return errs.NewAlreadyExistsError(what + " already exists")
	default:
		return errs.NewDatabaseError(op, "failed to "+op+" "+what, err)
	}
}
