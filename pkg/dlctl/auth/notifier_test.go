package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/telekom/dlctl/pkg/system"
)

func TestStatusNotifier_DeliversInOrder(t *testing.T) {
	status, messages := collectStatus()
	n := newStatusNotifier(status, system.NewTestLogger(t))

	n.send("one")
	n.send("")
	n.send("two")
	n.close()
	n.send("after close")

	assert.Equal(t, []string{"one", "two"}, messages())
}

func TestStatusNotifier_SlowCallbackDoesNotBlockSender(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	log, logs := system.NewObservedLogger(zapcore.DebugLevel)
	n := newStatusNotifier(func(string) { <-release }, log)
	defer once.Do(func() { close(release) })

	started := time.Now()
	for i := 0; i < notifierBuffer*2; i++ {
		n.send("progress")
	}
	assert.Less(t, time.Since(started), 500*time.Millisecond)
	assert.NotZero(t, logs.FilterMessage("Status message dropped").Len())

	closeStarted := time.Now()
	n.close()
	assert.GreaterOrEqual(t, time.Since(closeStarted), notifierFlushTimeout-50*time.Millisecond)
	once.Do(func() { close(release) })
}

func TestStatusNotifier_NilCallback(t *testing.T) {
	n := newStatusNotifier(nil, system.NewTestLogger(t))
	n.send("ignored")
	n.close()
	n.close()
}
