package wire

// Subject names shared by the coordinator and every data node. Request
// subjects are per-node so a client can address one specific location
// while it walks a block's location list; everything else is a single
// well-known fanout subject.
const (
	SubjectStoreBlock        = "griddfs.blocks.store"
	SubjectDeleteBlock       = "griddfs.blocks.delete"
	SubjectStorageConfirmed  = "griddfs.coordinator.confirmations"
	SubjectHeartbeat         = "griddfs.coordinator.heartbeats"
	requestBlockSubjectStem  = "griddfs.datanode.request_block."
)

// RequestBlockSubject returns the per-node subject a client addresses to
// request a block from nodeID directly.
func RequestBlockSubject(nodeID string) string {
	return requestBlockSubjectStem + nodeID
}
