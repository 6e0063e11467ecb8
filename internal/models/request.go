package models

type RegisterNodeReq struct {
	Name            string `json:"name"`
	AbsoluteTimeout uint64 `json:"absolute_timeout"`
	AllowNetwork    bool   `json:"allow_network"`
	AllowGpu        bool   `json:"allow_gpu"`
}

type UpdateNodeReq struct {
	AbsoluteTimeout uint64 `json:"absolute_timeout"`
	AllowNetwork    bool   `json:"allow_network"`
	AllowGpu        bool   `json:"allow_gpu"`
}

type OfflineReq struct {
	Offline bool `json:"offline"`
}

type CreateBountyReq struct {
	FileLocation         string           `json:"file_location"`
	FileDownloadProtocol DownloadProtocol `json:"file_download_protocol"`
	MinNodes             uint64           `json:"min_nodes"`
	TimeoutSeconds       uint64           `json:"timeout_seconds"`
	NetworkRequired      bool             `json:"network_required"`
	GpuRequired          bool             `json:"gpu_required"`
	AmtStorage           string           `json:"amt_storage"`
	AmtNodeReward        string           `json:"amt_node_reward"`
}

type AnswerReq struct {
	NodeId   string             `json:"node_id"`
	Solution string             `json:"solution"`
	Message  string             `json:"message"`
	Status   NodeResponseStatus `json:"status"`
}

type RejectReq struct {
	NodeId  string `json:"node_id"`
	Message string `json:"message"`
}

type CollectReq struct {
	NodeId string `json:"node_id"`
}

type BatchCollectReq struct {
	NodeId    string   `json:"node_id"`
	BountyIds []string `json:"bounty_ids"`
}

type CollectResult struct {
	BountyId string `json:"bounty_id"`
	Amount   string `json:"amount"`
}

type RemoveNodeResult struct {
	NodeId   string `json:"node_id"`
	Refunded string `json:"refunded"`
}
