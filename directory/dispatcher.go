package directory

import (
	"time"

	"dschain/committee"
	"dschain/consensus"
	"dschain/types"
)

// ProcessDSBlockConsensus DS block共识消息的入口
// 消息必须按序处理 - ANNOUNCE可能比状态切换先到，这里要等
func (ds *DirectoryService) ProcessDSBlockConsensus(message []byte, offset int, from types.Peer) bool {
	if ds.cfg.LookupNodeMode {
		ds.Logger.Error("ProcessDSBlockConsensus not expected to be called from lookup node")
		return true
	}

	{
		ds.consensusMtx.Lock()

		// primary的announcement到得太早时等状态切换和共识对象创建
		if isDSBlockPreConsensusState(ds.State()) {
			notify(ds.cvDSBlockConsensus)
			ds.consensusMtx.Unlock()

			if !waitSignal(ds.cvDSBlockConsensusObject, ds.cfg.ConsensusObjectTimeout) {
				ds.Logger.Error("time out while waiting for state transition and consensus object creation")
			}
			ds.Logger.Info("state transition is completed and consensus object creation (check for timeout)")
			ds.consensusMtx.Lock()
		}

		if ds.State() != DSBlockConsensus {
			ds.Logger.Info("ignoring consensus message", "state", ds.State())
			ds.consensusMtx.Unlock()
			return false
		}
		ds.consensusMtx.Unlock()
	}

	if !ds.waitForCorrectOrder(message, offset) {
		ds.Logger.Error("timeout while waiting for correct order of DS block consensus messages")
		return false
	}

	ds.consensusMtx.Lock()
	defer ds.consensusMtx.Unlock()

	if err := ds.consensusObject.Process(message, offset, from); err != nil {
		ds.Logger.Error("consensus process failed", "err", err)
		return false
	}

	switch ds.consensusObject.State() {
	case consensus.Done:
		ds.stateMtx.Lock()
		ds.viewChangeCounter = 0
		ds.stateMtx.Unlock()
		notify(ds.cvViewChangeDSBlock)
		ds.ProcessDSBlockConsensusWhenDone()
	case consensus.Error:
		ds.Logger.Info("no consensus reached. Wait for view change")
	default:
		ds.Logger.Info("consensus state", "state", ds.consensusObject.State())
		notify(ds.cvProcessConsensusMessage)
	}

	return true
}

// waitForCorrectOrder 乱序窗口 - 等共识对象可以处理这条消息
// rejoin中立即放弃；共识对象未创建时一直等到超时
func (ds *DirectoryService) waitForCorrectOrder(message []byte, offset int) bool {
	deadline := time.NewTimer(ds.cfg.ConsensusMsgOrderBlockWindow)
	defer deadline.Stop()

	for {
		ds.consensusMtx.Lock()
		canProcess := false
		if ds.getSyncType() != NoSync {
			ds.Logger.Error("the node started the process of rejoining, ignore rest of consensus msg")
			ds.consensusMtx.Unlock()
			return false
		}
		if ds.consensusObject == nil {
			ds.Logger.Error("consensus object has not been initialized")
		} else {
			canProcess = ds.consensusObject.CanProcess(message, offset)
		}
		ds.consensusMtx.Unlock()

		if canProcess {
			return true
		}

		select {
		case <-ds.cvProcessConsensusMessage:
			// pipeline有进展，重试谓词
		case <-deadline.C:
			return false
		}
	}
}

// ProcessFinalBlockConsensus final block共识消息的入口
// 按consensus id排序 - 小的丢弃、大的缓存、相等的按到达顺序处理
func (ds *DirectoryService) ProcessFinalBlockConsensus(message []byte, offset int, from types.Peer) bool {
	if ds.cfg.LookupNodeMode {
		ds.Logger.Error("ProcessFinalBlockConsensus not expected to be called from lookup node")
		return true
	}

	ds.consensusMtx.Lock()
	obj := ds.consensusObject
	ds.consensusMtx.Unlock()
	if obj == nil {
		ds.Logger.Error("consensus object has not been initialized")
		return false
	}

	consensusID, err := obj.GetConsensusID(message, offset)
	if err != nil {
		ds.Logger.Error("GetConsensusID failed", "err", err)
		return false
	}

	if ds.State() != FinalblockConsensus {
		// 非DS节点不缓存final block共识消息
		if ds.Mode() == committee.Idle {
			ds.Logger.Info("ignoring final block consensus message")
			return false
		}
		// 只在共识临近的状态缓存
		if !isFinalBlockPreConsensusState(ds.State()) {
			ds.Logger.Info("ignoring final block consensus message", "state", ds.State())
			return false
		}

		ds.bufferFinalBlockMsg(consensusID, from, message)
		ds.Logger.Info("process final block arrived early, saved to buffer", "consensus_id", consensusID)

		if consensusID == ds.ConsensusID() {
			// 共识已经可以开始了，停止收新的MB提交并催动final block共识
			ds.prepareRunMtx.Lock()
			notify(ds.cvScheduleDSMBConsensus)
			ds.microBlocksMtx.Lock()
			if !ds.stopRecvNewMBSubmission {
				ds.stopRecvNewMBSubmission = true
			}
			ds.microBlocksMtx.Unlock()
			notify(ds.cvScheduleFinalBlockCons)
			if ds.runConsensusOnFinalBlock != nil {
				ds.runConsensusOnFinalBlock(false)
			}
			ds.prepareRunMtx.Unlock()
		}
		return true
	}

	if consensusID < ds.ConsensusID() {
		ds.Logger.Error("consensus ID in message is smaller than current",
			"message", consensusID, "current", ds.ConsensusID())
		return false
	} else if consensusID > ds.ConsensusID() {
		ds.Logger.Info("buffer final block with larger consensus ID",
			"message", consensusID, "current", ds.ConsensusID())
		ds.bufferFinalBlockMsg(consensusID, from, message)
		return true
	}

	return ds.processFinalBlockConsensusCore(message, offset, from)
}

func (ds *DirectoryService) bufferFinalBlockMsg(consensusID uint32, from types.Peer, message []byte) {
	ds.fbBufferMtx.Lock()
	defer ds.fbBufferMtx.Unlock()
	ds.finalBlockConsensusBuffer[consensusID] = append(
		ds.finalBlockConsensusBuffer[consensusID], bufferedMsg{from: from, message: message})
}

// CommitFinalBlockConsensusBuffer 当前consensus id的缓存消息detached重放
func (ds *DirectoryService) CommitFinalBlockConsensusBuffer() {
	ds.fbBufferMtx.Lock()
	buffered := ds.finalBlockConsensusBuffer[ds.ConsensusID()]
	ds.fbBufferMtx.Unlock()

	for _, msg := range buffered {
		msg := msg
		go ds.processFinalBlockConsensusCore(msg.message, 0, msg.from)
	}
}

// CleanFinalBlockConsensusBuffer 换DS epoch时清空缓存
func (ds *DirectoryService) CleanFinalBlockConsensusBuffer() {
	ds.fbBufferMtx.Lock()
	defer ds.fbBufferMtx.Unlock()
	ds.finalBlockConsensusBuffer = make(map[uint32][]bufferedMsg)
}

// processFinalBlockConsensusCore 排好序之后的final block共识消息处理
func (ds *DirectoryService) processFinalBlockConsensusCore(message []byte, offset int, from types.Peer) bool {
	if ds.State() != FinalblockConsensus {
		ds.Logger.Info("ignoring consensus message", "state", ds.State())
		return false
	}

	if !ds.waitForCorrectOrder(message, offset) {
		ds.Logger.Error("timeout while waiting for correct order of final block consensus messages")
		return false
	}

	ds.consensusMtx.Lock()
	defer ds.consensusMtx.Unlock()

	if err := ds.consensusObject.Process(message, offset, from); err != nil {
		ds.Logger.Error("consensus process failed", "err", err)
		return false
	}

	switch ds.consensusObject.State() {
	case consensus.Done:
		notify(ds.cvViewChangeFinalBlock)
		ds.stateMtx.Lock()
		ds.viewChangeCounter = 0
		ds.stateMtx.Unlock()
		ds.ProcessFinalBlockConsensusWhenDone()
		return true

	case consensus.Error:
		errorCode := ds.consensusObject.ErrorCode()
		ds.Logger.Error("oops, no consensus reached - consensus error",
			"error_code", errorCode)

		switch errorCode {
		case consensus.FinalblockMissingMicroblocks:
			// leader提案里的microblock本地没有，等补块后从INITIAL重跑
			if !waitSignal(ds.cvMissingMicroBlock, ds.cfg.FetchingMissingDataTimeout) {
				ds.Logger.Error("fetching missing microblocks timeout")
			} else {
				ds.consensusObject.Recover(consensus.Initial)
				go func() {
					if ds.prepareFinalBlockConsensus != nil {
						ds.prepareFinalBlockConsensus()
					}
					ds.processFinalBlockConsensusCore(message, offset, from)
				}()
				return true
			}

		case consensus.MissingTxn:
			ds.Logger.Info("start pending for fetching missing txns")
			if !waitSignal(ds.cvMicroBlockMissingTxn, ds.cfg.FetchingMissingDataTimeout) {
				ds.Logger.Error("fetching missing txn timeout")
			} else {
				ds.consensusObject.Recover(consensus.Initial)
				go ds.processFinalBlockConsensusCore(message, offset, from)
				return true
			}
		}

		ds.Logger.Error("no consensus reached. Wait for view change")
		return false

	default:
		ds.Logger.Info("consensus state", "state", ds.consensusObject.State())
		notify(ds.cvProcessConsensusMessage)
		return true
	}
}
