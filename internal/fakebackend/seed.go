package fakebackend

import "github.com/codearena/arena/api"

// Demo account created by Seed.
const (
	DemoUsername = "alice"
	DemoPassword = "password"
)

// Seed fills s with a demo account and a few problems.
func Seed(s *Server) error {
	if _, err := s.AddUser(DemoUsername, DemoPassword, roleUser); err != nil {
		return err
	}
	s.AddProblem(
		api.Problem{ID: 1, Title: "Two Sum", Difficulty: "Easy", TopicTags: "Array, Hash Table",
			Description: "Return the indices of the two numbers that add up to the target."},
		[]api.TestCase{{ID: 1, Input: "2 7 11 15\n9", ExpectedOutput: "0 1", Sample: true}},
		[]api.CodeTemplate{
			{ID: 1, Language: "go", Template: "package main\n\nfunc twoSum(nums []int, target int) []int {\n\treturn nil\n}\n"},
			{ID: 2, Language: "python", Template: "def two_sum(nums, target):\n    pass\n"},
		},
	)
	s.AddProblem(
		api.Problem{ID: 2, Title: "Longest Increasing Subsequence", Difficulty: "Medium", TopicTags: "DP, Binary Search",
			Description: "Return the length of the longest strictly increasing subsequence."},
		[]api.TestCase{
			{ID: 2, Input: "10 9 2 5 3 7 101 18", ExpectedOutput: "4", Sample: true},
			{ID: 3, Input: "7 7 7 7", ExpectedOutput: "1"},
		},
		[]api.CodeTemplate{{ID: 3, Language: "java", Template: "class Solution {\n    int lengthOfLIS(int[] nums) { return 0; }\n}\n"}},
	)
	s.AddProblem(
		api.Problem{ID: 3, Title: "Knapsack", Difficulty: "Hard", TopicTags: "DP",
			Description: "Maximise the value that fits in a bag of the given capacity."},
		nil, nil,
	)
	return nil
}
