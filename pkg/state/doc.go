// Package state keeps posts query results addressed by canonical query keys.
//
// Responsibilities:
//   - Store[T] loads/saves/deletes one record for one key. MemoryStore and
//     RedisStore are the bundled implementations.
//   - Manager tracks the lifecycle of a query against three stores: result
//     pages, last-page numbers and in-flight requests.
//
// Keys:
//
//	Pages and requests use query.Canonicalizer.Serialize, so every page of a
//	query has its own key. Last pages use SerializeWithoutPage, so all pages of
//	one query share a single entry:
//
//	  2916284:{"search":"hello","page":2}  -> Page{Items, Found}
//	  2916284:{"search":"hello"}           -> last page number
//
// The package never interprets keys beyond passing them to the canonicalizer.
package state
