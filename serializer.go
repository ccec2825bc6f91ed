package cachekit

import (
	"encoding/json"
	"sync"
)

// Serializer converts values to and from the byte encoding stored in
// adapters. The default is JSON; embedders can register alternatives at
// wiring time and select one per engine.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (JSONSerializer) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

var (
	serializersMu sync.RWMutex
	serializers   = map[string]Serializer{"json": JSONSerializer{}}
)

// RegisterSerializer makes a Serializer available to LookupSerializer
// under name, in the manner of database/sql driver registration.
// Registering under an existing name replaces the previous entry.
func RegisterSerializer(name string, s Serializer) {
	serializersMu.Lock()
	defer serializersMu.Unlock()
	serializers[name] = s
}

// LookupSerializer resolves a registered Serializer by name. An unknown
// name fails with ErrSerializerNotFound; this only happens during wiring.
func LookupSerializer(name string) (Serializer, error) {
	serializersMu.RLock()
	defer serializersMu.RUnlock()
	s, ok := serializers[name]
	if !ok {
		return nil, &CacheError{Kind: ErrSerializerNotFound, Op: "lookup_serializer", Key: name}
	}
	return s, nil
}
