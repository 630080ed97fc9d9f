//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	_ "modernc.org/sqlite"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

// startKafka runs a single-node broker for the test and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("fia-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

const fixtureSchema = `
CREATE TABLE PLOT (CN TEXT, PREV_PLT_CN TEXT, STATECD INTEGER, INVYR INTEGER,
                   LAT REAL, LON REAL, ELEV REAL);
CREATE TABLE COND (PLT_CN TEXT, CONDID INTEGER, STATECD INTEGER, STDAGE REAL, BALIVE REAL,
                   SICOND REAL, SISP REAL, FORTYPCD REAL, DSTRBCD1 REAL, DSTRBYR1 REAL,
                   CONDPROP_UNADJ REAL);
CREATE TABLE TREE (CN TEXT, PLT_CN TEXT, PREV_TRE_CN TEXT, CONDID INTEGER, STATECD INTEGER,
                   STATUSCD INTEGER, DIACHECK INTEGER, DIA REAL, HT REAL, TOTAGE REAL,
                   SITREE REAL, TPA_UNADJ REAL, CARBON_AG REAL);

INSERT INTO PLOT VALUES ('100', NULL,  41, 2001, 44.5, -122.1, 1200);
INSERT INTO PLOT VALUES ('200', '100', 41, 2011, 44.5, -122.1, 1200);
INSERT INTO PLOT VALUES ('300', NULL,  41, 2011, 45.0, -121.0, 300);

INSERT INTO COND VALUES ('100', 1, 41, 40, 120.5, 85, 11, 201, 0, NULL, 1.0);
INSERT INTO COND VALUES ('200', 1, 41, 50, 130.0, 85, 11, 201, 0, NULL, 1.0);
INSERT INTO COND VALUES ('300', 1, 41, 90, 80.0,  70, 11, 221, 0, NULL, 1.0);

INSERT INTO TREE VALUES ('t1', '100', NULL, 1, 41, 1, 0, 12.0, 80, 45, 85, 6.018, 400);
INSERT INTO TREE VALUES ('t2', '200', 't1', 1, 41, 1, 0, 13.0, 84, 55, 85, 6.018, 450);
INSERT INTO TREE VALUES ('t3', '300', NULL, 1, 41, 1, 0, 20.0, 90, 95, 70, 6.018, 900);
`

// newFIADB writes a small two-chain FIADB for state 41.
func newFIADB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fiadb.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(fixtureSchema)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
