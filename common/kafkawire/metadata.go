package kafkawire

import "fmt"

// MetadataVersion is the version of the metadata request this package speaks.
const MetadataVersion int16 = 1

// MetadataRequest asks for cluster metadata.  An empty topic list asks for
// brokers only, a nil list with AllTopics asks for every topic.
type MetadataRequest struct {
	Topics    []string
	AllTopics bool
}

type Broker struct {
	NodeID int32
	Host   string
	Port   int32
	Rack   *string
}

type PartitionMetadata struct {
	ErrorCode      ErrorCode
	PartitionIndex int32
	LeaderID       int32
	ReplicaNodes   []int32
	IsrNodes       []int32
}

type TopicMetadata struct {
	ErrorCode  ErrorCode
	Name       string
	IsInternal bool
	Partitions []PartitionMetadata
}

type MetadataResponse struct {
	Brokers      []Broker
	ControllerID int32
	Topics       []TopicMetadata
}

func EncodeMetadataRequest(req MetadataRequest) []byte {
	e := &encoder{}
	if req.AllTopics {
		e.arrayLen(-1)
		return e.bytes()
	}

	e.arrayLen(len(req.Topics))
	for _, topic := range req.Topics {
		e.string(topic)
	}
	return e.bytes()
}

func DecodeMetadataRequest(body []byte) (MetadataRequest, error) {
	d := newDecoder(body)

	n, err := d.arrayLen(2)
	if err != nil {
		return MetadataRequest{}, err
	}
	if n < 0 {
		return MetadataRequest{AllTopics: true}, nil
	}

	req := MetadataRequest{Topics: make([]string, 0, n)}
	for i := 0; i < n; i++ {
		topic, err := d.string()
		if err != nil {
			return MetadataRequest{}, err
		}
		req.Topics = append(req.Topics, topic)
	}

	return req, nil
}

func EncodeMetadataResponse(resp MetadataResponse) []byte {
	e := &encoder{}

	e.arrayLen(len(resp.Brokers))
	for _, broker := range resp.Brokers {
		e.int32(broker.NodeID)
		e.string(broker.Host)
		e.int32(broker.Port)
		e.nullableString(broker.Rack)
	}

	e.int32(resp.ControllerID)

	e.arrayLen(len(resp.Topics))
	for _, topic := range resp.Topics {
		e.int16(int16(topic.ErrorCode))
		e.string(topic.Name)
		e.bool(topic.IsInternal)

		e.arrayLen(len(topic.Partitions))
		for _, partition := range topic.Partitions {
			e.int16(int16(partition.ErrorCode))
			e.int32(partition.PartitionIndex)
			e.int32(partition.LeaderID)
			e.int32Array(partition.ReplicaNodes)
			e.int32Array(partition.IsrNodes)
		}
	}

	return e.bytes()
}

func DecodeMetadataResponse(body []byte) (*MetadataResponse, error) {
	d := newDecoder(body)
	resp := &MetadataResponse{}

	// node id, host, port and rack take at least 12 bytes
	brokerCount, err := d.arrayLen(12)
	if err != nil {
		return nil, fmt.Errorf("brokers: %w", err)
	}
	for i := 0; i < brokerCount; i++ {
		var broker Broker
		if broker.NodeID, err = d.int32(); err != nil {
			return nil, fmt.Errorf("broker %d: %w", i, err)
		}
		if broker.Host, err = d.string(); err != nil {
			return nil, fmt.Errorf("broker %d: %w", i, err)
		}
		if broker.Port, err = d.int32(); err != nil {
			return nil, fmt.Errorf("broker %d: %w", i, err)
		}
		if broker.Rack, err = d.nullableString(); err != nil {
			return nil, fmt.Errorf("broker %d: %w", i, err)
		}
		resp.Brokers = append(resp.Brokers, broker)
	}

	if resp.ControllerID, err = d.int32(); err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	topicCount, err := d.arrayLen(9)
	if err != nil {
		return nil, fmt.Errorf("topics: %w", err)
	}
	for i := 0; i < topicCount; i++ {
		topic, err := decodeTopicMetadata(d)
		if err != nil {
			return nil, fmt.Errorf("topic %d: %w", i, err)
		}
		resp.Topics = append(resp.Topics, topic)
	}

	if d.remaining() > 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, d.remaining())
	}

	return resp, nil
}

func decodeTopicMetadata(d *decoder) (TopicMetadata, error) {
	var topic TopicMetadata

	errorCode, err := d.int16()
	if err != nil {
		return TopicMetadata{}, err
	}
	topic.ErrorCode = ErrorCode(errorCode)

	if topic.Name, err = d.string(); err != nil {
		return TopicMetadata{}, err
	}
	if topic.IsInternal, err = d.bool(); err != nil {
		return TopicMetadata{}, err
	}

	partitionCount, err := d.arrayLen(18)
	if err != nil {
		return TopicMetadata{}, err
	}
	for i := 0; i < partitionCount; i++ {
		var partition PartitionMetadata

		errorCode, err := d.int16()
		if err != nil {
			return TopicMetadata{}, err
		}
		partition.ErrorCode = ErrorCode(errorCode)

		if partition.PartitionIndex, err = d.int32(); err != nil {
			return TopicMetadata{}, err
		}
		if partition.LeaderID, err = d.int32(); err != nil {
			return TopicMetadata{}, err
		}
		if partition.ReplicaNodes, err = d.int32Array(); err != nil {
			return TopicMetadata{}, err
		}
		if partition.IsrNodes, err = d.int32Array(); err != nil {
			return TopicMetadata{}, err
		}

		topic.Partitions = append(topic.Partitions, partition)
	}

	return topic, nil
}
