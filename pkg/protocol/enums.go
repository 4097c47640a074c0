package protocol

import "fmt"

// MessageType enumerates every control message exchanged on a
// coordinator↔worker link, grounded on the full DmtcpMessageType enum
// (not just the subset spec.md's prose names).
type MessageType uint32

const (
	DMT_NULL MessageType = iota
	DMT_NEW_WORKER
	DMT_NAME_SERVICE_WORKER
	DMT_RESTART_WORKER
	DMT_ACCEPT
	DMT_REJECT_NOT_RUNNING
	DMT_REJECT_NOT_RESTARTING
	DMT_REJECT_WRONG_COMP
	DMT_UPDATE_PROCESS_INFO_AFTER_FORK
	DMT_UPDATE_WORKER_STATE
	DMT_CKPT_FILENAME
	DMT_UNIQUE_CKPT_FILENAME
	DMT_USER_CMD
	DMT_USER_CMD_RESULT
	DMT_DO_SUSPEND
	DMT_DO_RESUME
	DMT_DO_FD_LEADER_ELECTION
	DMT_DO_PRE_CKPT_NAME_SERVICE_DATA_REGISTER
	DMT_DO_PRE_CKPT_NAME_SERVICE_DATA_QUERY
	DMT_DO_DRAIN
	DMT_DO_CHECKPOINT
	DMT_DO_REGISTER_NAME_SERVICE_DATA
	DMT_DO_SEND_QUERIES
	DMT_DO_REFILL
	DMT_KILL_PEER
	DMT_REGISTER_NAME_SERVICE_DATA
	DMT_REGISTER_NAME_SERVICE_DATA_SYNC
	DMT_REGISTER_NAME_SERVICE_DATA_SYNC_RESPONSE
	DMT_NAME_SERVICE_QUERY
	DMT_NAME_SERVICE_QUERY_RESPONSE
	DMT_NAME_SERVICE_GET_UNIQUE_ID
	DMT_NAME_SERVICE_GET_UNIQUE_ID_RESPONSE
	DMT_UPDATE_LOGGING
	DMT_OK
	dmtMessageTypeCount
)

var messageTypeNames = map[MessageType]string{
	DMT_NULL:                                      "DMT_NULL",
	DMT_NEW_WORKER:                                "DMT_NEW_WORKER",
	DMT_NAME_SERVICE_WORKER:                       "DMT_NAME_SERVICE_WORKER",
	DMT_RESTART_WORKER:                            "DMT_RESTART_WORKER",
	DMT_ACCEPT:                                    "DMT_ACCEPT",
	DMT_REJECT_NOT_RUNNING:                        "DMT_REJECT_NOT_RUNNING",
	DMT_REJECT_NOT_RESTARTING:                     "DMT_REJECT_NOT_RESTARTING",
	DMT_REJECT_WRONG_COMP:                         "DMT_REJECT_WRONG_COMP",
	DMT_UPDATE_PROCESS_INFO_AFTER_FORK:            "DMT_UPDATE_PROCESS_INFO_AFTER_FORK",
	DMT_UPDATE_WORKER_STATE:                       "DMT_UPDATE_WORKER_STATE",
	DMT_CKPT_FILENAME:                             "DMT_CKPT_FILENAME",
	DMT_UNIQUE_CKPT_FILENAME:                      "DMT_UNIQUE_CKPT_FILENAME",
	DMT_USER_CMD:                                  "DMT_USER_CMD",
	DMT_USER_CMD_RESULT:                           "DMT_USER_CMD_RESULT",
	DMT_DO_SUSPEND:                                "DMT_DO_SUSPEND",
	DMT_DO_RESUME:                                 "DMT_DO_RESUME",
	DMT_DO_FD_LEADER_ELECTION:                     "DMT_DO_FD_LEADER_ELECTION",
	DMT_DO_PRE_CKPT_NAME_SERVICE_DATA_REGISTER:    "DMT_DO_PRE_CKPT_NAME_SERVICE_DATA_REGISTER",
	DMT_DO_PRE_CKPT_NAME_SERVICE_DATA_QUERY:       "DMT_DO_PRE_CKPT_NAME_SERVICE_DATA_QUERY",
	DMT_DO_DRAIN:                                  "DMT_DO_DRAIN",
	DMT_DO_CHECKPOINT:                             "DMT_DO_CHECKPOINT",
	DMT_DO_REGISTER_NAME_SERVICE_DATA:             "DMT_DO_REGISTER_NAME_SERVICE_DATA",
	DMT_DO_SEND_QUERIES:                           "DMT_DO_SEND_QUERIES",
	DMT_DO_REFILL:                                 "DMT_DO_REFILL",
	DMT_KILL_PEER:                                 "DMT_KILL_PEER",
	DMT_REGISTER_NAME_SERVICE_DATA:                "DMT_REGISTER_NAME_SERVICE_DATA",
	DMT_REGISTER_NAME_SERVICE_DATA_SYNC:           "DMT_REGISTER_NAME_SERVICE_DATA_SYNC",
	DMT_REGISTER_NAME_SERVICE_DATA_SYNC_RESPONSE:  "DMT_REGISTER_NAME_SERVICE_DATA_SYNC_RESPONSE",
	DMT_NAME_SERVICE_QUERY:                        "DMT_NAME_SERVICE_QUERY",
	DMT_NAME_SERVICE_QUERY_RESPONSE:               "DMT_NAME_SERVICE_QUERY_RESPONSE",
	DMT_NAME_SERVICE_GET_UNIQUE_ID:                "DMT_NAME_SERVICE_GET_UNIQUE_ID",
	DMT_NAME_SERVICE_GET_UNIQUE_ID_RESPONSE:       "DMT_NAME_SERVICE_GET_UNIQUE_ID_RESPONSE",
	DMT_UPDATE_LOGGING:                            "DMT_UPDATE_LOGGING",
	DMT_OK:                                        "DMT_OK",
}

func (t MessageType) String() string {
	if n, ok := messageTypeNames[t]; ok {
		return n
	}
	return "DMT_UNKNOWN"
}

// Valid reports whether t is within the enum's defined range.
func (t MessageType) Valid() bool {
	return t < dmtMessageTypeCount
}

// CoordCmd enumerates the interactive commands a DMT_USER_CMD message
// may carry.
type CoordCmd uint32

const (
	CoordCmdNone CoordCmd = iota
	CoordCmdQueryStatus
	CoordCmdCheckpoint
	CoordCmdSetInterval
	CoordCmdListPeers
	CoordCmdKill
)

// CoordCmdStatus enumerates the result codes a coordinator returns for
// a CoordCmd, matching CoordCmdStatus::ErrorCodes in the original
// source exactly (including the negative numbering).
type CoordCmdStatus int32

const (
	NoError                  CoordCmdStatus = 0
	ErrorInvalidCommand      CoordCmdStatus = -1
	ErrorNotRunningState     CoordCmdStatus = -2
	ErrorCoordinatorNotFound CoordCmdStatus = -3
)

var coordCmdStatusNames = map[CoordCmdStatus]string{
	NoError:                  "NoError",
	ErrorInvalidCommand:      "ErrorInvalidCommand",
	ErrorNotRunningState:     "ErrorNotRunningState",
	ErrorCoordinatorNotFound: "ErrorCoordinatorNotFound",
}

func (s CoordCmdStatus) String() string {
	if n, ok := coordCmdStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("CoordCmdStatus(%d)", int32(s))
}
