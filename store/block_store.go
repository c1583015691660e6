package store

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"
)

// 持久化key的前缀，按区块类型分表
const (
	prefixDSBlock    = "ds"
	prefixTxBlock    = "tx"
	prefixVCBlock    = "vc"
	prefixStateDelta = "delta"
	prefixMetadata   = "meta"
)

// 元数据key
const (
	MetaLatestActiveDSBlockNum = "LATESTACTIVEDSBLOCKNUM"
	MetaDSIncompleted          = "DSINCOMPLETED"
)

var (
	ErrStoreFault = errors.New("block store write failed")
	ErrNotFound   = errors.New("block store key not found")
)

func NewBlockStore(name, dir string, logger log.Logger) *BlockStore {
	levelDB, err := leveldb.NewDB(name, dir)
	if err != nil {
		return nil
	}
	return NewBlockStoreWithDB(levelDB, logger)
}

func NewBlockStoreWithDB(kvdb tmdb.DB, logger log.Logger) *BlockStore {
	return &BlockStore{kvDB: kvdb, logger: logger}
}

// BlockStore 落盘存储的类型化门面
// 不解析任何payload，写成功即保证落盘
type BlockStore struct {
	kvDB tmdb.DB

	logger log.Logger
}

func (bs *BlockStore) PutDSBlock(num uint64, bz []byte) error {
	return bs.put(genKey(prefixDSBlock, fmt.Sprintf("%d", num)), bz)
}

func (bs *BlockStore) GetDSBlock(num uint64) ([]byte, error) {
	return bs.get(genKey(prefixDSBlock, fmt.Sprintf("%d", num)))
}

func (bs *BlockStore) PutTxBlock(num uint64, bz []byte) error {
	return bs.put(genKey(prefixTxBlock, fmt.Sprintf("%d", num)), bz)
}

func (bs *BlockStore) GetTxBlock(num uint64) ([]byte, error) {
	return bs.get(genKey(prefixTxBlock, fmt.Sprintf("%d", num)))
}

func (bs *BlockStore) PutVCBlock(blockHash []byte, bz []byte) error {
	return bs.put(genKey(prefixVCBlock, string(blockHash)), bz)
}

func (bs *BlockStore) GetVCBlock(blockHash []byte) ([]byte, error) {
	return bs.get(genKey(prefixVCBlock, string(blockHash)))
}

func (bs *BlockStore) PutStateDelta(txBlockNum uint64, bz []byte) error {
	return bs.put(genKey(prefixStateDelta, fmt.Sprintf("%d", txBlockNum)), bz)
}

func (bs *BlockStore) GetStateDelta(txBlockNum uint64) ([]byte, error) {
	return bs.get(genKey(prefixStateDelta, fmt.Sprintf("%d", txBlockNum)))
}

func (bs *BlockStore) PutMetadata(key string, bz []byte) error {
	return bs.put(genKey(prefixMetadata, key), bz)
}

func (bs *BlockStore) GetMetadata(key string) ([]byte, error) {
	return bs.get(genKey(prefixMetadata, key))
}

func (bs *BlockStore) put(key, value []byte) error {
	// SetSync保证返回前已经落盘
	if err := bs.kvDB.SetSync(key, value); err != nil {
		bs.logger.Error("block store write failed", "key", string(key), "err", err)
		return errors.Wrap(ErrStoreFault, err.Error())
	}
	return nil
}

func (bs *BlockStore) get(key []byte) ([]byte, error) {
	bz, err := bs.kvDB.Get(key)
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, ErrNotFound
	}
	return bz, nil
}

func genKey(prefix, primaryKey string) []byte {
	return []byte(prefix + ":" + primaryKey)
}

func (bs *BlockStore) GetDB() tmdb.DB {
	return bs.kvDB
}

func (bs *BlockStore) Close() error {
	return bs.kvDB.Close()
}
