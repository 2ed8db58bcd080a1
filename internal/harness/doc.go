// Package harness runs recurrence scenarios described in YAML against a real
// store and compares the outcome with golden files.
//
// # Scenario Format
//
//	name: monthly_month_end
//	description: "Jan 31 anchor clamps to the last day of shorter months"
//	max_per_source: 100            # optional, defaults to the engine default
//	sources:
//	  - sync_id: rent
//	    amount: "950.00"
//	    date: 2025-01-31
//	    recurrence: { type: monthly, interval: 1, end_date: 2025-12-31 }
//	  - sync_id: broken
//	    amount: "1"
//	    date: 2025-01-01
//	    raw_recurrence: '{"type":'  # stored verbatim, bypassing validation
//	occurrences:                    # occurrences that exist before the first run
//	  - source: rent
//	    date: 2025-02-28
//	runs:
//	  - today: 2025-04-15
//	    expect_created: 2
//	    expect_skipped: [broken]
//	assertions:
//	  - type: occurrence_dates
//	    source: rent
//	    dates: [2025-02-28, 2025-03-31]
//	  - type: occurrence_count
//	    source: rent
//	    count: 2
//	  - type: no_duplicates
//
// # Deterministic Execution
//
// Every scenario runs in a fresh in-memory SQLite database with a
// testutil.DeterministicClock and testutil.SequentialIDs, so the golden
// output is byte-identical across runs.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/monthly.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
