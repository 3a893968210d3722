package db

import "fmt"

const (
	segmentTable = "segment"
	taskTable    = "ingest_task"
	entityTable  = "entity"
	topicTable   = "topic"
	mentionsRel  = "mentions"
	coversRel    = "covers"
)

// SchemaSQL returns the schema definition with the HNSW index sized to dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(schemaTemplate, dimension)
}

const schemaTemplate = `
    -- ==========================================================================
    -- SEGMENT TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS segment SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS video_id ON segment TYPE string;
    DEFINE FIELD IF NOT EXISTS start_time ON segment TYPE float;
    DEFINE FIELD IF NOT EXISTS end_time ON segment TYPE float;
    DEFINE FIELD IF NOT EXISTS text ON segment TYPE string;
    -- Display spellings plus lowercase keys for case-insensitive filters
    DEFINE FIELD IF NOT EXISTS entities ON segment TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS topics ON segment TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS entity_keys ON segment TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS topic_keys ON segment TYPE array<string>;
    -- NONE for degraded segments, which stay out of the vector index
    DEFINE FIELD IF NOT EXISTS embedding ON segment TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS degraded ON segment TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS title ON segment TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS source ON segment TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS updated ON segment TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS segment_video ON segment FIELDS video_id, start_time;
    DEFINE INDEX IF NOT EXISTS segment_entity_keys ON segment FIELDS entity_keys;
    DEFINE INDEX IF NOT EXISTS segment_topic_keys ON segment FIELDS topic_keys;
    DEFINE INDEX IF NOT EXISTS segment_embedding ON segment FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- ENTITY AND TOPIC NODES (record id is the lowercase key)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS entity SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON entity TYPE string;
    DEFINE TABLE IF NOT EXISTS topic SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON topic TYPE string;

    -- ==========================================================================
    -- MENTIONS / COVERS RELATIONS (segment -> entity, segment -> topic)
    -- ==========================================================================
    -- video_id is denormalized so a video's edges can be replaced in one statement
    DEFINE TABLE IF NOT EXISTS mentions TYPE RELATION IN segment OUT entity SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS video_id ON mentions TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON mentions TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS mentions_video ON mentions FIELDS video_id;

    DEFINE TABLE IF NOT EXISTS covers TYPE RELATION IN segment OUT topic SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS video_id ON covers TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON covers TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS covers_video ON covers FIELDS video_id;

    -- ==========================================================================
    -- INGEST TASK TABLE
    -- ==========================================================================
    -- Optional timestamps and free-form metadata vary per task
    DEFINE TABLE IF NOT EXISTS ingest_task SCHEMALESS;
    DEFINE FIELD IF NOT EXISTS status ON ingest_task TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON ingest_task TYPE datetime;

    DEFINE INDEX IF NOT EXISTS ingest_task_status ON ingest_task FIELDS status;
    DEFINE INDEX IF NOT EXISTS ingest_task_created ON ingest_task FIELDS created_at;
`
