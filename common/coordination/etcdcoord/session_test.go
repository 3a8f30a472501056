package etcdcoord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.etcd.io/etcd/api/v3/mvccpb"
)

func TestChildNames(t *testing.T) {
	kvs := []*mvccpb.KeyValue{
		{Key: []byte("/brokers/ids/2")},
		{Key: []byte("/brokers/ids/1")},
		{Key: []byte("/brokers/ids/1/extra")},
		{Key: []byte("/brokers/idsx")},
	}

	assert.Equal(t, []string{"1", "2"}, childNames("/brokers/ids", kvs))
	assert.Equal(t, []string{"brokers"}, childNames("/", kvs))
	assert.Empty(t, childNames("/other", kvs))
}

func TestChildPrefix(t *testing.T) {
	assert.Equal(t, "/", childPrefix("/"))
	assert.Equal(t, "/brokers/ids/", childPrefix("/brokers/ids"))
}
