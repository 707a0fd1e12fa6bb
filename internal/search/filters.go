package search

import "go.mongodb.org/mongo-driver/bson"

// withDocIDs returns a copy with the resolved KB document set attached and
// the tag filter consumed. Tags on a KB query restrict parent documents,
// not chunks, so they never reach a pipeline directly.
func (f Filters) withDocIDs(ids []string) Filters {
	f.docIDs = ids
	f.Tags = nil
	return f
}

// vectorFilter builds the MQL pre-filter for $vectorSearch. Only fields the
// vector indexes declare as filter paths appear; the same document doubles
// as the $match filter on the $text tier.
func (f Filters) vectorFilter(kind Kind) bson.D {
	var doc bson.D
	switch kind {
	case KindMemory:
		if f.Source != "" {
			doc = append(doc, bson.E{Key: "source", Value: f.Source})
		}
		if f.Path != "" {
			doc = append(doc, bson.E{Key: "path", Value: f.Path})
		}
	case KindKB:
		if len(f.docIDs) > 0 {
			doc = append(doc, bson.E{Key: "docId", Value: bson.D{{Key: "$in", Value: f.docIDs}}})
		}
	case KindStructured:
		if f.AgentID != "" {
			doc = append(doc, bson.E{Key: "agentId", Value: f.AgentID})
		}
		if f.Category != "" {
			doc = append(doc, bson.E{Key: "type", Value: f.Category})
		}
		if len(f.Tags) > 0 {
			doc = append(doc, bson.E{Key: "tags", Value: bson.D{{Key: "$in", Value: f.Tags}}})
		}
	}
	return doc
}

// searchClauses builds compound filter clauses for $search. Token-mapped
// fields take equals/in operators.
func (f Filters) searchClauses(kind Kind) []bson.D {
	var clauses []bson.D
	switch kind {
	case KindMemory:
		if f.Source != "" {
			clauses = append(clauses, equalsClause("source", f.Source))
		}
		if f.Path != "" {
			clauses = append(clauses, equalsClause("path", f.Path))
		}
	case KindKB:
		if len(f.docIDs) > 0 {
			clauses = append(clauses, inClause("docId", f.docIDs))
		}
	case KindStructured:
		if f.AgentID != "" {
			clauses = append(clauses, equalsClause("agentId", f.AgentID))
		}
		if f.Category != "" {
			clauses = append(clauses, equalsClause("type", f.Category))
		}
		if len(f.Tags) > 0 {
			clauses = append(clauses, inClause("tags", f.Tags))
		}
	}
	return clauses
}

func equalsClause(path, value string) bson.D {
	return bson.D{{Key: "equals", Value: bson.D{
		{Key: "path", Value: path},
		{Key: "value", Value: value},
	}}}
}

func inClause(path string, values []string) bson.D {
	return bson.D{{Key: "in", Value: bson.D{
		{Key: "path", Value: path},
		{Key: "value", Value: values},
	}}}
}
