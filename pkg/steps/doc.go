/*
Package steps provides the built-in financial reasoning graph.

The graph classifies each user query, fetches and normalizes transaction
data when the query is about spending, asks the language model for an
analysis over the normalized rows, and formats a final answer. Capability
failures route to a degraded answer that states explicitly which data is
missing instead of silently dropping it.

All steps are pure transition functions; external calls are declared via
Prepare and executed, cached, and retried by the engine.
*/
package steps
