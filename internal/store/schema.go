package store

// schemaSQL defines the knowledge table and the taxonomy config document.
// The single %d placeholder is the embedding dimension; it must match the
// deployment's embedder output and never change once records exist.
const schemaSQL = `
    -- ==========================================================================
    -- KNOWLEDGE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS knowledge SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS category ON knowledge TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS subcategory ON knowledge TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS topic ON knowledge TYPE string DEFAULT "general";
    DEFINE FIELD IF NOT EXISTS title ON knowledge TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS raw_data ON knowledge TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS paraphrased_data ON knowledge TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS image ON knowledge TYPE string;
    DEFINE FIELD IF NOT EXISTS url ON knowledge TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS status ON knowledge TYPE string DEFAULT "pending"
        ASSERT $value IN ["pending", "processing", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS last_error ON knowledge TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS comments ON knowledge TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS retry_count ON knowledge TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS embedding ON knowledge TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS created_at ON knowledge TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON knowledge TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS knowledge_image ON knowledge FIELDS image;
    DEFINE INDEX IF NOT EXISTS knowledge_status ON knowledge FIELDS status;
    DEFINE INDEX IF NOT EXISTS knowledge_taxonomy ON knowledge FIELDS category, subcategory;
    DEFINE INDEX IF NOT EXISTS knowledge_embedding ON knowledge FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- CONFIG TABLE (taxonomy document)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS config SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS categories ON config TYPE array<object> FLEXIBLE DEFAULT [];
    DEFINE FIELD IF NOT EXISTS updated_at ON config TYPE datetime DEFAULT time::now();
`
