package id

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nats-io/nuid"
)

var (
	UUID   ID = &uuidGen{}
	NUID   ID = &nuidGen{}
	NanoID ID = &nanoidGen{}
)

// ID is an interface for generating unique random identifiers.
type ID interface {
	New() string
}

// uuidGen implements ID to generate UUIDs.
type uuidGen struct{}

func (i *uuidGen) New() string {
	return uuid.New().String()
}

// nuidGen implements ID to generate NUIDs.
type nuidGen struct{}

func (i *nuidGen) New() string {
	return nuid.Next()
}

// nanoidGen implements ID to generate NanoIDs.
type nanoidGen struct{}

func (i *nanoidGen) New() string {
	return gonanoid.Must()
}
