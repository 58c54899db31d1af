// Package graph implements the knowledge graph: a directed graph
// of typed, confidence-scored nodes and edges with deprecation, PageRank,
// merge/deprecate operations, and hybrid retrieval. The Graph exclusively
// owns every node and edge in the system; no other component mutates it
// directly.
package graph

import (
	"errors"
	"time"
)

// NodeType enumerates the node kinds.
type NodeType string

const (
	NodeConcept    NodeType = "concept"
	NodeEntity     NodeType = "entity"
	NodePerson     NodeType = "person"
	NodeFact       NodeType = "fact"
	NodePreference NodeType = "preference"
	NodeSkill      NodeType = "skill"
	NodeMistake    NodeType = "mistake"
	NodeQuestion   NodeType = "question"
	NodeDomain     NodeType = "domain"
	NodeTopic      NodeType = "topic"
	NodeFile       NodeType = "file"
	NodeEvent      NodeType = "event"
	NodeTechnology NodeType = "technology"
)

// EdgeType enumerates the edge kinds, grouped by family.
type EdgeType string

const (
	// structural
	EdgeIsA       EdgeType = "is_a"
	EdgePartOf    EdgeType = "part_of"
	EdgeRelatesTo EdgeType = "relates_to"
	EdgeHasProp   EdgeType = "has_property"
	EdgeDependsOn EdgeType = "depends_on"
	EdgeUsedIn    EdgeType = "used_in"
	// quality
	EdgeContradicts EdgeType = "contradicts"
	EdgeSupports    EdgeType = "supports"
	EdgeCorrects    EdgeType = "corrects"
	// user
	EdgePreferredBy EdgeType = "preferred_by"
	EdgeKnows       EdgeType = "knows"
	EdgeDislikes    EdgeType = "dislikes"
	// provenance
	EdgeExtractedFrom EdgeType = "extracted_from"
	EdgeInferredFrom  EdgeType = "inferred_from"
	EdgeMentionedIn   EdgeType = "mentioned_in"
	// similarity
	EdgeSimilarTo EdgeType = "similar_to"
)

// ErrNodeNotFound is returned when an operation references a node id the
// graph doesn't hold (or that is deprecated, where that matters).
var ErrNodeNotFound = errors.New("graph: node not found")

// ErrEdgeEndpointMissing is returned when UpsertEdge is given an id that
// doesn't resolve to a live node.
var ErrEdgeEndpointMissing = errors.New("graph: edge endpoint missing or deprecated")

// Node is a single knowledge-graph node.
type Node struct {
	ID                string
	Type              NodeType
	Label             string // normalized lowercase identity key within Type
	DisplayLabel      string
	Properties        map[string]string
	Confidence        float64
	CreatedAt         time.Time
	LastAccessed      time.Time
	LastUpdated       time.Time
	AccessCount       int
	Domain            string
	Sources           []string // ordered list of origin identifiers
	EmbeddingID       string
	Deprecated        bool
	DeprecationReason string
}

// Edge is a directed, typed connection between two nodes.
type Edge struct {
	SourceID      string
	TargetID      string
	Type          EdgeType
	Confidence    float64
	Weight        float64
	Properties    map[string]string
	CreatedAt     time.Time
	LastReinforced time.Time
}

// edgeKey identifies an edge by its (source, target, type) triple; a
// duplicate triple reinforces the existing edge instead of duplicating it.
type edgeKey struct {
	source string
	target string
	typ    EdgeType
}
