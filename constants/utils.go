package constants

const StatusActive = "Active"
const StatusOffline = "Offline"
const StatusRemoved = "Removed"

// ledger key prefixes
const KEY_COORDINATOR_STATE = "coordinator/state"
const PREFIX_NODE = "node/"
const PREFIX_BOUNTY = "bounty/"
const PREFIX_OWNER_NODES = "owner-nodes/"
const PREFIX_OWNER_BOUNTIES = "owner-bounties/"
const PREFIX_DEPOSIT = "deposit/"

const TASK_TRANSFER string = "coordinator.transfer"

const REDIS_TRANSFER_PREFIX = "transfer:"
const REDIS_EVENT_CHANNEL = "coordinator:events"

// request headers
const HEADER_ACCOUNT = "X-Account"
const HEADER_TIMESTAMP = "X-Timestamp"
const HEADER_SIGNATURE = "X-Signature"
const HEADER_DEPOSIT_TX = "X-Deposit-Tx"
const HEADER_ATTACHED_DEPOSIT = "X-Attached-Deposit"
