package server

import "github.com/gin-gonic/gin"

// RegisterRoutes attaches the API surface under the given group.
func RegisterRoutes(rg *gin.RouterGroup, s *Server) {
	pipeline := rg.Group("/pipeline")
	{
		pipeline.GET("/state", s.handleState)
		pipeline.POST("/recompute", s.handleRecompute)
		pipeline.GET("/history", s.handleHistory)
		pipeline.POST("/rollback", s.handleRollback)
	}

	guardrail := rg.Group("/guardrail")
	{
		guardrail.POST("/evaluate", s.handleEvaluate)
	}

	mode := rg.Group("/mode")
	{
		mode.POST("/transition", s.handleTransition)
		mode.GET("/transitions", s.handleTransitions)
	}

	sensitivity := rg.Group("/sensitivity")
	{
		sensitivity.POST("/run", s.handleSweep)
		sensitivity.GET("/runs", s.handleRuns)
		sensitivity.GET("/runs/:id", s.handleRun)
	}

	solver := rg.Group("/solver")
	{
		solver.POST("/report", s.handleSolverReport)
	}

	rg.GET("/target-validation", s.handleTargetValidation)
	rg.POST("/target-validation", s.handleTargetTrial)
}
