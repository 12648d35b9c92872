// Policache speaks a subset of the Redis protocol (RESP) so that any Redis client can use the cache. Writes are
// acknowledged once the backing store has applied them; a store failure is reported as an error even though the
// cache keeps the change.

package port

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/nobletooth/policache/pkg/cache"
	"github.com/nobletooth/policache/pkg/scan"
	"github.com/tidwall/redcon"
)

const RedisOk = "OK"

var (
	address      = flag.String("address", ":6380", "The ip:port to listen on for Redis protocol.")
	writeTimeout = flag.Duration("redis_write_timeout", 5*time.Second,
		"How long a write command waits for the backing store before answering with an error.")
)

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string // Upper-cased command name.
	args    [][]byte
}

// newRedisCommand copies a redcon command; redcon reuses argument buffers once the handler returns.
func newRedisCommand(cmd redcon.Command) redisCommand {
	command := redisCommand{command: strings.ToUpper(string(cmd.Args[0])), args: make([][]byte, len(cmd.Args)-1)}
	for i := 1; i < len(cmd.Args); i++ {
		command.args[i-1] = bytes.Clone(cmd.Args[i])
	}
	return command
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	closeConnection bool     // Closes the connection if true.
	writeNil        bool     // Writes a nil value if true.
	err             *string  // Error to return if set.
	writeInt        *int     // Writes an integer value if set.
	writeBulk       []byte   // Writes a bulk string if non-nil.
	writeArray      []string // Writes an array of bulk strings if non-nil.
	writeString     string   // Writes a simple string otherwise.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{writeNil: true}
}

func writeRedisInt(i int) redisOutput {
	return redisOutput{writeInt: &i}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisBulk(b []byte) redisOutput {
	if b == nil {
		b = []byte{}
	}
	return redisOutput{writeBulk: b}
}

func writeRedisArray(items []string) redisOutput {
	if items == nil {
		items = []string{}
	}
	return redisOutput{writeArray: items}
}

func writeRedisError(err error) redisOutput {
	msg := "ERR " + err.Error()
	return redisOutput{err: &msg}
}

func wrongArity(command string) redisOutput {
	return writeRedisError(fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(command)))
}

// write sends the output to the client.
func (o redisOutput) write(conn redcon.Conn) {
	switch {
	case o.err != nil:
		conn.WriteError(*o.err)
	case o.writeNil:
		conn.WriteNull()
	case o.writeInt != nil:
		conn.WriteInt(*o.writeInt)
	case o.writeBulk != nil:
		conn.WriteBulk(o.writeBulk)
	case o.writeArray != nil:
		conn.WriteArray(len(o.writeArray))
		for _, item := range o.writeArray {
			conn.WriteBulkString(item)
		}
	default:
		conn.WriteString(o.writeString)
	}
}

type redisHandler struct {
	ctx   context.Context
	cache cache.Layer[[]byte]
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(ctx context.Context, layer cache.Layer[[]byte]) (*redisHandler, error) {
	if layer == nil {
		return nil, errors.New("expected a non-nil cache")
	}
	return &redisHandler{ctx: ctx, cache: layer}, nil
}

// await waits for the store operations of a write command.
func (rh *redisHandler) await(pending *cache.Pending) error {
	ctx, cancel := context.WithTimeout(rh.ctx, *writeTimeout)
	defer cancel()
	return pending.Wait(ctx)
}

func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	switch cmd.command {
	case "PING":
		if len(cmd.args) > 1 {
			return wrongArity(cmd.command)
		}
		if len(cmd.args) == 1 {
			return writeRedisBulk(cmd.args[0])
		}
		return writeRedisString("PONG")
	case "ECHO":
		if len(cmd.args) != 1 {
			return wrongArity(cmd.command)
		}
		return writeRedisBulk(cmd.args[0])
	case "QUIT":
		return closeRedisConnection(RedisOk)
	case "SET":
		if len(cmd.args) != 2 {
			return wrongArity(cmd.command)
		}
		if err := rh.await(rh.cache.Set(string(cmd.args[0]), cmd.args[1])); err != nil {
			return writeRedisError(err)
		}
		return writeRedisString(RedisOk)
	case "GET":
		if len(cmd.args) != 1 {
			return wrongArity(cmd.command)
		}
		value, found := rh.cache.Get(rh.ctx, string(cmd.args[0]))
		if !found {
			return writeRedisNil()
		}
		return writeRedisBulk(value)
	case "DEL":
		if len(cmd.args) < 1 {
			return wrongArity(cmd.command)
		}
		deletedCount := 0
		var errs []error
		for _, arg := range cmd.args {
			pending, tracked := rh.cache.Remove(string(arg))
			if tracked {
				deletedCount++
			}
			if err := rh.await(pending); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return writeRedisError(err)
		}
		return writeRedisInt(deletedCount)
	case "EXISTS":
		if len(cmd.args) < 1 {
			return wrongArity(cmd.command)
		}
		existing := 0
		for _, arg := range cmd.args {
			if rh.cache.Contains(string(arg)) {
				existing++
			}
		}
		return writeRedisInt(existing)
	case "KEYS":
		if len(cmd.args) != 1 {
			return wrongArity(cmd.command)
		}
		keys := rh.cache.Keys()
		slices.Sort(keys)
		matched, err := scan.MatchGlob(string(cmd.args[0]), slices.Values(keys))
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisArray(slices.Collect(matched))
	case "DBSIZE":
		if len(cmd.args) != 0 {
			return wrongArity(cmd.command)
		}
		return writeRedisInt(rh.cache.Len())
	case "FLUSHALL", "FLUSHDB":
		if err := rh.await(rh.cache.RemoveAll()); err != nil {
			return writeRedisError(err)
		}
		return writeRedisString(RedisOk)
	default:
		return writeRedisError(fmt.Errorf("unknown command '%s'", strings.ToLower(cmd.command)))
	}
}

// serve handles one client command.
func (rh *redisHandler) serve(conn redcon.Conn, cmd redcon.Command) {
	output := rh.handle(newRedisCommand(cmd))
	output.write(conn)
	if output.closeConnection {
		if err := conn.Close(); err != nil {
			slog.Error("Failed to close connection.", "remote", conn.RemoteAddr(), "error", err)
		}
	}
}

// RunRedisServer serves the Redis protocol on --address until `ctx` is cancelled.
func RunRedisServer(ctx context.Context, layer cache.Layer[[]byte]) error {
	if *address == "" {
		return errors.New("expected a non-empty --address flag")
	}

	redisHandler, err := newRedisHandler(ctx, layer)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *address, redisHandler.serve,
		/*accept*/ func(conn redcon.Conn) bool {
			slog.Debug("Accepted redis connection.", "remote", conn.RemoteAddr())
			return true
		},
		/*closed*/ func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Redis connection closed with error.", "remote", conn.RemoteAddr(), "error", err)
			}
		})

	serverErrSignal := make(chan error, 1)
	go func() {
		slog.Info("Serving redis protocol.", "address", *address)
		if err := redisServer.ListenAndServe(); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()

	select {
	case <-ctx.Done():
		if err := redisServer.Close(); err != nil {
			return fmt.Errorf("failed to close redis server: %w", err)
		}
	case err := <-serverErrSignal:
		if err == nil {
			return errors.New("redis server stopped unexpectedly")
		}
		return fmt.Errorf("redis server stopped unexpectedly: %w", err)
	}

	return nil // Exited with no errors.
}
