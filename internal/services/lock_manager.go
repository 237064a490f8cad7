// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 按键管理的互斥锁集合，用于串行化同一项目的写入
type LockManager struct {
	locks      map[string]*LockInfo
	globalLock sync.Mutex
	lockTTL    time.Duration
	maxLocks   int
	stopOnce   sync.Once
	stopChan   chan struct{}
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex          sync.Mutex
	LastUsed       time.Time
	ReferenceCount int32 // 持有或等待此锁的协程数，大于零时不会被清理
}

// NewLockManager 创建锁管理器并启动后台清理
func NewLockManager() *LockManager {
	lm := &LockManager{
		locks:    make(map[string]*LockInfo),
		lockTTL:  30 * time.Minute,
		maxLocks: 200,
		stopChan: make(chan struct{}),
	}

	lm.startCleanup(5 * time.Minute)
	return lm
}

// ProjectLockKey 项目锁的键
func ProjectLockKey(userID, projectID string) string {
	return userID + "/" + projectID
}

func (lm *LockManager) acquire(key string) *LockInfo {
	lm.globalLock.Lock()
	info, exists := lm.locks[key]
	if !exists {
		info = &LockInfo{}
		lm.locks[key] = info
	}
	info.ReferenceCount++
	info.LastUsed = time.Now()
	lm.globalLock.Unlock()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	info.ReferenceCount--
	info.LastUsed = time.Now()
	lm.globalLock.Unlock()
}

// ExecuteWithLock 在键对应的锁保护下执行 fn
func (lm *LockManager) ExecuteWithLock(key string, fn func() error) error {
	info := lm.acquire(key)
	defer lm.release(info)

	info.Mutex.Lock()
	defer info.Mutex.Unlock()

	return fn()
}

// Len 当前登记的锁数量
func (lm *LockManager) Len() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.locks)
}

// Stop 停止后台清理
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}

func (lm *LockManager) startCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-lm.stopChan:
				return
			case <-ticker.C:
				lm.cleanupUnusedLocks(time.Now())
			}
		}
	}()
}

// cleanupUnusedLocks 锁数量超过上限时移除空闲超时且无人引用的锁
func (lm *LockManager) cleanupUnusedLocks(now time.Time) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	if len(lm.locks) <= lm.maxLocks {
		return
	}

	for key, info := range lm.locks {
		if info.ReferenceCount == 0 && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.locks, key)
		}
	}
}
